package main

// SpeedHoldConfig holds the speed-hold PID parameters. The controller output
// is a signed pedal effort in percent: positive is throttle, negative brake.
type SpeedHoldConfig struct {
	Kp             float64 `yaml:"kp" env:"DBW_HOLD_KP"`
	Ki             float64 `yaml:"ki" env:"DBW_HOLD_KI"`
	Kd             float64 `yaml:"kd" env:"DBW_HOLD_KD"`
	MaxThrottlePct float64 `yaml:"max_throttle_pct" env:"DBW_HOLD_MAX_THROTTLE"`
	MaxBrakePct    float64 `yaml:"max_brake_pct" env:"DBW_HOLD_MAX_BRAKE"`
	IntegralLimit  float64 `yaml:"integral_limit" env:"DBW_HOLD_INTEGRAL_LIMIT"`
}

func DefaultSpeedHoldConfig() SpeedHoldConfig {
	return SpeedHoldConfig{
		Kp:             20,
		Ki:             4,
		Kd:             0.5,
		MaxThrottlePct: 40,
		MaxBrakePct:    60,
		IntegralLimit:  10,
	}
}

// SpeedHold is a discrete PID tracking a target speed from speed telemetry.
type SpeedHold struct {
	cfg       SpeedHoldConfig
	targetMPS float64

	// State
	integral    float64
	prevError   float64
	initialized bool
}

// NewSpeedHold creates a controller holding targetMPS.
func NewSpeedHold(cfg SpeedHoldConfig, targetMPS float64) *SpeedHold {
	return &SpeedHold{cfg: cfg, targetMPS: targetMPS}
}

// Reset clears the PID state
func (h *SpeedHold) Reset() {
	h.integral = 0.0
	h.prevError = 0.0
	h.initialized = false
}

func (h *SpeedHold) Target() float64 { return h.targetMPS }

// SetTarget changes the held speed and restarts the integrator.
func (h *SpeedHold) SetTarget(targetMPS float64) {
	h.targetMPS = targetMPS
	h.Reset()
}

// Update computes the pedal command for the measured speed.
//
// Returns: throttle and brake percentages, at most one of them non-zero.
func (h *SpeedHold) Update(speedMPS float64, dt float64) (throttlePct, brakePct float64) {
	err := h.targetMPS - speedMPS

	// No derivative on the first sample
	if !h.initialized {
		h.prevError = err
		h.initialized = true
	}

	p := h.cfg.Kp * err

	// Integral term with anti-windup
	h.integral += err * dt
	if h.integral > h.cfg.IntegralLimit {
		h.integral = h.cfg.IntegralLimit
	} else if h.integral < -h.cfg.IntegralLimit {
		h.integral = -h.cfg.IntegralLimit
	}
	i := h.cfg.Ki * h.integral

	var d float64
	if dt > 0 {
		d = h.cfg.Kd * (err - h.prevError) / dt
	}

	effort := p + i + d

	// Saturate, then back-calculate the integral so it does not wind up
	if effort > h.cfg.MaxThrottlePct {
		effort = h.cfg.MaxThrottlePct
		if h.cfg.Ki != 0 {
			h.integral = (effort - p - d) / h.cfg.Ki
		}
	} else if effort < -h.cfg.MaxBrakePct {
		effort = -h.cfg.MaxBrakePct
		if h.cfg.Ki != 0 {
			h.integral = (effort - p - d) / h.cfg.Ki
		}
	}

	h.prevError = err

	if effort >= 0 {
		return effort, 0
	}
	return 0, -effort
}

// SpeedHoldDiagnostics contains PID internal state for monitoring
type SpeedHoldDiagnostics struct {
	TargetMPS float64 `json:"target_mps"`
	Error     float64 `json:"error"`
	Integral  float64 `json:"integral"`
	P         float64 `json:"p"`
	I         float64 `json:"i"`
}

func (h *SpeedHold) Diagnostics() SpeedHoldDiagnostics {
	return SpeedHoldDiagnostics{
		TargetMPS: h.targetMPS,
		Error:     h.prevError,
		Integral:  h.integral,
		P:         h.cfg.Kp * h.prevError,
		I:         h.cfg.Ki * h.integral,
	}
}
