package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"dbw-can-bridge/dbw"
)

// operatorCommand is one console verb. run returns the text to print.
type operatorCommand struct {
	name string
	help string
	run  func(args []string) (string, error)
}

func operatorCommands(r *Runner, ctrl *dbw.Controller) []operatorCommand {
	setter := func(name string, apply func(in *dbw.Intent, v float64)) func([]string) (string, error) {
		return func(args []string) (string, error) {
			v, err := floatArg(args, 0, name)
			if err != nil {
				return "", err
			}
			in := r.UpdateIntent(func(in *dbw.Intent) { apply(in, v) })
			return "intent: " + in.String(), nil
		}
	}

	return []operatorCommand{
		{
			name: "throttle",
			help: "throttle <percent>",
			run:  setter("percent", func(in *dbw.Intent, v float64) { in.ThrottlePct = v }),
		},
		{
			name: "brake",
			help: "brake <percent>",
			run:  setter("percent", func(in *dbw.Intent, v float64) { in.BrakePct = v }),
		},
		{
			name: "steer",
			help: "steer <degrees>  (positive is left)",
			run:  setter("degrees", func(in *dbw.Intent, v float64) { in.SteerDeg = v }),
		},
		{
			name: "axes",
			help: "axes <steer -1..1> <pedal -1..1>  (joystick mapping)",
			run: func(args []string) (string, error) {
				steer, err := floatArg(args, 0, "steer axis")
				if err != nil {
					return "", err
				}
				pedal, err := floatArg(args, 1, "pedal axis")
				if err != nil {
					return "", err
				}
				in := dbw.AxisIntent(steer, pedal)
				r.SetIntent(in)
				return "intent: " + in.String(), nil
			},
		},
		{
			name: "stop",
			help: "stop  (zero throttle, full brake, keep steering)",
			run: func([]string) (string, error) {
				r.ReleaseHold()
				in := r.UpdateIntent(func(in *dbw.Intent) {
					in.ThrottlePct = 0
					in.BrakePct = dbw.MaxPercent
				})
				return "intent: " + in.String(), nil
			},
		},
		{
			name: "gear",
			help: "gear <code>",
			run: func(args []string) (string, error) {
				if len(args) < 1 {
					return "", fmt.Errorf("missing gear code")
				}
				g, err := strconv.ParseUint(args[0], 0, 8)
				if err != nil {
					return "", fmt.Errorf("invalid gear code %q: %w", args[0], err)
				}
				if err := ctrl.SetOutbound(dbw.IDGear, dbw.EncodeGear(uint8(g))); err != nil {
					return "", err
				}
				return fmt.Sprintf("gear set to %d", g), nil
			},
		},
		{
			name: "raw",
			help: "raw <id> <byte> ...  (hex, gear/park/mode ids 103-105)",
			run: func(args []string) (string, error) {
				if len(args) < 2 {
					return "", fmt.Errorf("usage: raw <id> <byte> ...")
				}
				id, p, err := parseRawFrame(args[0], args[1:])
				if err != nil {
					return "", err
				}
				if err := r.SetRawFrame(id, p); err != nil {
					return "", err
				}
				return fmt.Sprintf("%v <- %v", id, p), nil
			},
		},
		{
			name: "hold",
			help: "hold <m/s> | hold off",
			run: func(args []string) (string, error) {
				if len(args) == 1 && args[0] == "off" {
					r.ReleaseHold()
					return "speed hold off", nil
				}
				v, err := floatArg(args, 0, "speed")
				if err != nil {
					return "", err
				}
				if err := r.EngageHold(v); err != nil {
					return "", err
				}
				return fmt.Sprintf("holding %.2f m/s", v), nil
			},
		},
		{
			name: "status",
			help: "status  (telemetry and commanded intent)",
			run: func([]string) (string, error) {
				var b strings.Builder
				fmt.Fprintf(&b, "telemetry: %s\n", ctrl.Telemetry())
				fmt.Fprintf(&b, "applied:   %s\n", r.Applied())
				if on, diag := r.HoldStatus(); on {
					fmt.Fprintf(&b, "hold:      %.2f m/s (error %.2f)\n", diag.TargetMPS, diag.Error)
				}
				out := ctrl.OutboundSnapshot()
				for _, id := range dbw.OutboundIDs() {
					fmt.Fprintf(&b, "  %v %v\n", id, out[id])
				}
				in := ctrl.InboundSnapshot()
				ids := make([]dbw.MessageID, 0, len(in))
				for id := range in {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					fmt.Fprintf(&b, "  %v %v\n", id, in[id])
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		{
			name: "stats",
			help: "stats  (loop counters)",
			run: func([]string) (string, error) {
				s := ctrl.Stats()
				return fmt.Sprintf("tx cycles=%d sent=%d errors=%d | rx cycles=%d received=%d malformed=%d errors=%d",
					s.TxCycles, s.Sent, s.SendErrors, s.RxCycles, s.Received, s.Malformed, s.PollErrors), nil
			},
		},
	}
}

// newShell builds the interactive operator console.
func newShell(cmds []operatorCommand) *ishell.Shell {
	shell := ishell.New()
	shell.Println("Drive-by-wire bridge console")
	shell.ShowPrompt(true)
	for _, cmd := range cmds {
		cmd := cmd
		shell.AddCmd(&ishell.Cmd{
			Name: cmd.name,
			Help: cmd.help,
			Func: func(c *ishell.Context) {
				out, err := cmd.run(c.Args)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(out)
			},
		})
	}
	return shell
}

func floatArg(args []string, i int, name string) (float64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, args[i])
	}
	return v, nil
}

// parseRawFrame reads a hex identifier and up to 8 hex bytes.
func parseRawFrame(idArg string, byteArgs []string) (dbw.MessageID, dbw.Payload, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(idArg), "0x"), 16, 16)
	if err != nil {
		return 0, dbw.Payload{}, fmt.Errorf("invalid id %q", idArg)
	}
	p, err := parseHexBytes(byteArgs)
	if err != nil {
		return 0, dbw.Payload{}, err
	}
	return dbw.MessageID(id), p, nil
}

// parseHexBytes reads up to 8 hex byte tokens into a zero-padded payload.
func parseHexBytes(tokens []string) (dbw.Payload, error) {
	if len(tokens) == 0 {
		return dbw.Payload{}, fmt.Errorf("no data bytes")
	}
	data := make([]byte, 0, len(tokens))
	for _, a := range tokens {
		b, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(a), "0x"), 16, 8)
		if err != nil {
			return dbw.Payload{}, fmt.Errorf("invalid byte %q", a)
		}
		data = append(data, byte(b))
	}
	return dbw.PayloadFromBytes(data)
}
