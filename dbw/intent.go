package dbw

import (
	"fmt"
	"math"

	"dbw-can-bridge/utils"
)

const (
	// MaxPercent bounds throttle and brake intents.
	MaxPercent = 100.0
	// DefaultMaxSteerDeg is the lock-to-lock half range of the steering rack.
	DefaultMaxSteerDeg = 270.0
)

// Intent is the operator's control request in physical units.
type Intent struct {
	ThrottlePct float64 `json:"throttle_pct"`
	BrakePct    float64 `json:"brake_pct"`
	SteerDeg    float64 `json:"steer_deg"`
}

// Clamped limits throttle and brake to [0, 100] and steering to ±maxSteerDeg.
// NaN components become zero.
func (in Intent) Clamped(maxSteerDeg float64) Intent {
	return Intent{
		ThrottlePct: utils.Clamp(zeroNaN(in.ThrottlePct), 0, MaxPercent),
		BrakePct:    utils.Clamp(zeroNaN(in.BrakePct), 0, MaxPercent),
		SteerDeg:    utils.Clamp(zeroNaN(in.SteerDeg), -maxSteerDeg, maxSteerDeg),
	}
}

func (in Intent) String() string {
	return fmt.Sprintf("Throttle: %.1f %%, Brake: %.1f %%, Steering: %.1f deg",
		in.ThrottlePct, in.BrakePct, in.SteerDeg)
}

// Frames encodes the intent into the throttle, brake and steer command frames.
func (in Intent) Frames() ([]Frame, error) {
	throttle, err := EncodeThrottle(in.ThrottlePct)
	if err != nil {
		return nil, err
	}
	brake, err := EncodeBrake(in.BrakePct)
	if err != nil {
		return nil, err
	}
	steer, err := EncodeSteer(in.SteerDeg)
	if err != nil {
		return nil, err
	}
	return []Frame{
		{ID: IDThrottle, Payload: throttle},
		{ID: IDBrake, Payload: brake},
		{ID: IDSteer, Payload: steer},
	}, nil
}

// AxisIntent maps joystick axes in [-1, 1] to an intent: the steering axis
// spans ±270 deg (right is negative), the pedal axis is throttle when pulled
// back (negative) and brake when pushed forward. Values are truncated to
// whole units.
func AxisIntent(steerAxis, pedalAxis float64) Intent {
	steerAxis = utils.Clamp(zeroNaN(steerAxis), -1, 1)
	pedalAxis = utils.Clamp(zeroNaN(pedalAxis), -1, 1)
	return Intent{
		SteerDeg:    -math.Trunc(steerAxis * DefaultMaxSteerDeg),
		ThrottlePct: math.Trunc(-math.Min(0, pedalAxis) * MaxPercent),
		BrakePct:    math.Trunc(math.Max(0, pedalAxis) * MaxPercent),
	}
}

// DecodeIntent recovers the commanded intent from an outbound snapshot.
func DecodeIntent(outbound map[MessageID]Payload) (Intent, error) {
	var in Intent
	var err error
	throttle, brake, steer := outbound[IDThrottle], outbound[IDBrake], outbound[IDSteer]
	if in.ThrottlePct, err = DecodeThrottleOrBrake(throttle[:]); err != nil {
		return Intent{}, err
	}
	if in.BrakePct, err = DecodeThrottleOrBrake(brake[:]); err != nil {
		return Intent{}, err
	}
	if in.SteerDeg, err = DecodeSteer(steer[:]); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// Telemetry is the decoded vehicle state. A nil field has never been reported.
type Telemetry struct {
	SpeedMPS    *float64 `json:"speed_mps,omitempty"`
	ThrottlePct *float64 `json:"throttle_pct,omitempty"`
	BrakePct    *float64 `json:"brake_pct,omitempty"`
	SteerDeg    *float64 `json:"steer_deg,omitempty"`
}

func (t Telemetry) String() string {
	return fmt.Sprintf("Speed: %s m/s, Throttle: %s %%, Brake: %s %%, Steering: %s deg",
		fmtOpt(t.SpeedMPS, 3), fmtOpt(t.ThrottlePct, 1), fmtOpt(t.BrakePct, 1), fmtOpt(t.SteerDeg, 1))
}

// DecodeTelemetry decodes the known report frames of an inbound snapshot.
func DecodeTelemetry(inbound map[MessageID]Payload) Telemetry {
	var t Telemetry
	decode := func(id MessageID, fn func([]byte) (float64, error)) *float64 {
		p, ok := inbound[id]
		if !ok {
			return nil
		}
		v, err := fn(p[:])
		if err != nil {
			return nil
		}
		return &v
	}
	t.SpeedMPS = decode(IDSpeedReport, DecodeSpeed)
	t.ThrottlePct = decode(IDThrottleReport, DecodeThrottleOrBrake)
	t.BrakePct = decode(IDBrakeReport, DecodeThrottleOrBrake)
	t.SteerDeg = decode(IDSteerReport, DecodeSteer)
	return t
}

func fmtOpt(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
