package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"

	"dbw-can-bridge/dbw"
	"dbw-can-bridge/utils"
)

// ErrRunnerOwned is returned for raw writes to the frames the operator loop
// rewrites every period.
var ErrRunnerOwned = errors.New("frame follows the operator intent")

type RunnerConfig struct {
	Period      time.Duration
	MaxSteerDeg float64
	Hold        SpeedHoldConfig
	Script      *Script
}

// Runner is the operator side of the bridge: on every period it picks the
// current intent (manual, scripted, speed hold) and hands it to the controller.
type Runner struct {
	cfg  RunnerConfig
	log  *utils.Logger
	ctrl *dbw.Controller

	mu          deadlock.Mutex
	manual      dbw.Intent
	hold        *SpeedHold
	holdStarved bool
	script      *Script
	scriptStart time.Time
	applied     dbw.Intent
	ticks       uint64
}

func NewRunner(cfg RunnerConfig, ctrl *dbw.Controller, log *utils.Logger) *Runner {
	if cfg.Period <= 0 {
		cfg.Period = defaultOperatorPeriod
	}
	if cfg.MaxSteerDeg <= 0 {
		cfg.MaxSteerDeg = dbw.DefaultMaxSteerDeg
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		ctrl:   ctrl,
		script: cfg.Script,
	}
}

// SetIntent replaces the manual intent. It is clamped when applied.
func (r *Runner) SetIntent(in dbw.Intent) {
	r.mu.Lock()
	r.manual = in
	r.mu.Unlock()
}

// UpdateIntent applies fn to the manual intent under the runner lock.
func (r *Runner) UpdateIntent(fn func(*dbw.Intent)) dbw.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.manual)
	return r.manual
}

func (r *Runner) Manual() dbw.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manual
}

// Applied returns the last intent handed to the controller.
func (r *Runner) Applied() dbw.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// SetRawFrame installs a raw outbound frame. Throttle, brake and steer are
// refused since the next step would overwrite them.
func (r *Runner) SetRawFrame(id dbw.MessageID, p dbw.Payload) error {
	switch id {
	case dbw.IDThrottle, dbw.IDBrake, dbw.IDSteer:
		return fmt.Errorf("%w: %v, use throttle/brake/steer or PUT /api/intent", ErrRunnerOwned, id)
	}
	return r.ctrl.SetOutbound(id, p)
}

// EngageHold makes throttle and brake track targetMPS from speed telemetry.
func (r *Runner) EngageHold(targetMPS float64) error {
	if targetMPS < 0 {
		return fmt.Errorf("speed hold target must be >= 0, got %.2f", targetMPS)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hold == nil {
		r.hold = NewSpeedHold(r.cfg.Hold, targetMPS)
	} else {
		r.hold.SetTarget(targetMPS)
	}
	r.holdStarved = false
	r.log.Info("Speed hold engaged target=%.2f m/s", targetMPS)
	return nil
}

func (r *Runner) ReleaseHold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hold != nil {
		r.log.Info("Speed hold released")
	}
	r.hold = nil
}

// HoldStatus reports whether speed hold is engaged and its diagnostics.
func (r *Runner) HoldStatus() (bool, SpeedHoldDiagnostics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hold == nil {
		return false, SpeedHoldDiagnostics{}
	}
	return true, r.hold.Diagnostics()
}

// ScriptRunning reports whether a script is currently driving the intent.
func (r *Runner) ScriptRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.script != nil
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting operator loop period=%s max_steer=%.0f", r.cfg.Period, r.cfg.MaxSteerDeg)

	ticker := time.NewTicker(r.cfg.Period)
	defer ticker.Stop()

	r.mu.Lock()
	r.scriptStart = time.Now()
	if r.script != nil {
		r.log.Info("Playing script %q duration=%.2fs", r.script.Meta.Name, r.script.Timing.DurationS)
	}
	r.mu.Unlock()

	dt := r.cfg.Period.Seconds()
	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping operator loop")
			return ctx.Err()
		case now := <-ticker.C:
			if err := r.step(now, dt); err != nil {
				r.log.Error("Apply intent failed: %v", err)
			}
		}
	}
}

// step computes and applies one intent.
func (r *Runner) step(now time.Time, dt float64) error {
	tel := r.ctrl.Telemetry()

	r.mu.Lock()
	in := r.manual
	if r.script != nil {
		t := now.Sub(r.scriptStart).Seconds()
		if scripted, running := r.script.Eval(t); running {
			in = scripted
		} else {
			r.log.Info("Script %q complete; back to manual intent", r.script.Meta.Name)
			r.script = nil
		}
	}
	if r.hold != nil {
		if tel.SpeedMPS == nil {
			if !r.holdStarved {
				r.log.Warn("Speed hold has no speed telemetry; coasting")
				r.holdStarved = true
			}
			in.ThrottlePct, in.BrakePct = 0, 0
		} else {
			r.holdStarved = false
			in.ThrottlePct, in.BrakePct = r.hold.Update(*tel.SpeedMPS, dt)
		}
	}
	in = in.Clamped(r.cfg.MaxSteerDeg)
	r.applied = in
	r.ticks++
	ticks := r.ticks
	r.mu.Unlock()

	if ticks%10 == 0 {
		r.log.Debug("%s | %s", tel, in)
	}
	return r.ctrl.ApplyIntent(in)
}
