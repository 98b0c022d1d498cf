package main

import (
	"encoding/json"
	"fmt"
	"os"

	"dbw-can-bridge/dbw"
)

// Script is a timed sequence of operator intents replayed by the runner
// in place of manual input.
type Script struct {
	Meta     ScriptMeta      `json:"meta"`
	Timing   ScriptTiming    `json:"timing"`
	Defaults dbw.Intent      `json:"defaults"`
	Segments []ScriptSegment `json:"segments"`
}

// ScriptMeta contains script metadata
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ScriptTiming struct {
	DurationS float64 `json:"duration_s"`
}

// ScriptSegment holds the intent for t0 <= t < t1. A negative t1 runs to the
// end of the script.
type ScriptSegment struct {
	T0          float64 `json:"t0"`
	T1          float64 `json:"t1"`
	ThrottlePct float64 `json:"throttle_pct,omitempty"`
	BrakePct    float64 `json:"brake_pct,omitempty"`
	SteerDeg    float64 `json:"steer_deg,omitempty"`
	Comment     string  `json:"comment,omitempty"`
}

// LoadScript loads a script from a JSON file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if s.Timing.DurationS <= 0 {
		return nil, fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	for i, seg := range s.Segments {
		if seg.T0 < 0 || (seg.T1 >= 0 && seg.T1 <= seg.T0) {
			return nil, fmt.Errorf("segment %d: invalid window [%.3f, %.3f)", i, seg.T0, seg.T1)
		}
		if seg.ThrottlePct < 0 || seg.BrakePct < 0 {
			return nil, fmt.Errorf("segment %d: negative pedal value", i)
		}
	}
	return &s, nil
}

// Eval returns the intent at t seconds into the script and whether the
// script is still running.
func (s *Script) Eval(t float64) (dbw.Intent, bool) {
	if t >= s.Timing.DurationS {
		return dbw.Intent{}, false
	}
	in := s.Defaults

	// First matching segment wins
	for _, seg := range s.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = s.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			in = dbw.Intent{
				ThrottlePct: seg.ThrottlePct,
				BrakePct:    seg.BrakePct,
				SteerDeg:    seg.SteerDeg,
			}
			break
		}
	}
	return in, true
}
