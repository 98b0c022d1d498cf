package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"dbw-can-bridge/dbw"
	"dbw-can-bridge/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// API serves telemetry and accepts operator commands over HTTP.
type API struct {
	ctrl   *dbw.Controller
	runner *Runner
	log    *utils.Logger
	period time.Duration
}

func NewAPI(ctrl *dbw.Controller, runner *Runner, log *utils.Logger, streamPeriod time.Duration) *API {
	if streamPeriod <= 0 {
		streamPeriod = defaultOperatorPeriod
	}
	return &API{ctrl: ctrl, runner: runner, log: log, period: streamPeriod}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/telemetry", a.getTelemetry)
		r.Get("/commands", a.getCommands)
		r.Put("/intent", a.putIntent)
		r.Put("/frames/{id}", a.putFrame)
		r.Get("/stats", a.getStats)
	})
	r.Get("/ws", a.stream)
	return r
}

//---
// Payloads
//---

type TelemetryResponse struct {
	dbw.Telemetry
	Frames map[string]string `json:"frames"`
}

type CommandsResponse struct {
	Intent    dbw.Intent            `json:"intent"`
	Applied   dbw.Intent            `json:"applied"`
	Commanded *dbw.Intent           `json:"commanded,omitempty"`
	Hold      *SpeedHoldDiagnostics `json:"hold,omitempty"`
	Frames    map[string]string     `json:"frames"`
}

// IntentRequest sets the manual intent. Axes, when present, take precedence
// and go through the joystick mapping.
type IntentRequest struct {
	dbw.Intent
	SteerAxis *float64 `json:"steer_axis,omitempty"`
	PedalAxis *float64 `json:"pedal_axis,omitempty"`
}

func (i *IntentRequest) Bind(r *http.Request) error {
	if (i.SteerAxis == nil) != (i.PedalAxis == nil) {
		return errors.New("steer_axis and pedal_axis must be given together")
	}
	return nil
}

// FrameRequest carries hex bytes, e.g. {"data": "01 04"}.
type FrameRequest struct {
	Data string `json:"data"`

	payload dbw.Payload
}

func (f *FrameRequest) Bind(r *http.Request) error {
	p, err := parseHexBytes(strings.Fields(f.Data))
	if err != nil {
		return err
	}
	f.payload = p
	return nil
}

type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrUnavailable(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusServiceUnavailable,
		StatusText:     "Controller unavailable.",
		ErrorText:      err.Error(),
	}
}

//---
// Views
//---

func (a *API) getTelemetry(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, a.telemetry())
}

func (a *API) telemetry() TelemetryResponse {
	snap := a.ctrl.InboundSnapshot()
	return TelemetryResponse{
		Telemetry: dbw.DecodeTelemetry(snap),
		Frames:    frameStrings(snap),
	}
}

func (a *API) getCommands(w http.ResponseWriter, r *http.Request) {
	resp := CommandsResponse{
		Intent:  a.runner.Manual(),
		Applied: a.runner.Applied(),
		Frames:  frameStrings(a.ctrl.OutboundSnapshot()),
	}
	if in, err := a.ctrl.Intent(); err == nil {
		resp.Commanded = &in
	}
	if on, diag := a.runner.HoldStatus(); on {
		resp.Hold = &diag
	}
	render.JSON(w, r, resp)
}

func (a *API) putIntent(w http.ResponseWriter, r *http.Request) {
	data := &IntentRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	in := data.Intent
	if data.SteerAxis != nil {
		in = dbw.AxisIntent(*data.SteerAxis, *data.PedalAxis)
	}
	if err := validIntent(in); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	a.runner.SetIntent(in)
	render.JSON(w, r, in)
}

func (a *API) putFrame(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 16, 16)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid id: %w", err)))
		return
	}
	data := &FrameRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	p := data.payload
	if err := a.runner.SetRawFrame(dbw.MessageID(id), p); err != nil {
		if errors.Is(err, dbw.ErrClosed) {
			render.Render(w, r, ErrUnavailable(err))
			return
		}
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	render.JSON(w, r, map[string]string{dbw.MessageID(id).String(): p.String()})
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, a.ctrl.Stats())
}

// stream pushes a telemetry snapshot to the client every period until either
// side goes away.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader only notices the close from the peer.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(a.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(a.period * 5))
			if err := conn.WriteJSON(a.telemetry()); err != nil {
				a.log.Debug("[%s] websocket write: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
}

// validIntent rejects pedal values the encoders refuse. Out-of-range values
// are clamped later by the runner.
func validIntent(in dbw.Intent) error {
	for _, v := range []float64{in.ThrottlePct, in.BrakePct, in.SteerDeg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", dbw.ErrDomain)
		}
	}
	if in.ThrottlePct < 0 || in.BrakePct < 0 {
		return fmt.Errorf("%w: negative pedal value", dbw.ErrDomain)
	}
	return nil
}

func frameStrings(m map[dbw.MessageID]dbw.Payload) map[string]string {
	out := make(map[string]string, len(m))
	for id, p := range m {
		out[fmt.Sprintf("0x%03X", uint16(id))] = p.String()
	}
	return out
}
