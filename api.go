package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/go-chi/render"
)

const DEFAULT_SHOT_LIMIT = 50

//---
// Payloads
//---

type ObservationPayload struct {
	onboard.Observation
}

func (o *ObservationPayload) Bind(r *http.Request) error {
	return nil
}

type AimPayload struct {
	Pan  *int `json:"pan"`
	Tilt *int `json:"tilt"`
}

func (a *AimPayload) Bind(r *http.Request) error {
	if a.Pan == nil || a.Tilt == nil {
		return errors.New("pan and tilt are required")
	}
	return nil
}

type FirePayload struct {
	hardware.FireRequest
}

func (f *FirePayload) Bind(r *http.Request) error {
	return nil
}

type RawPayload struct {
	Opcode *int `json:"opcode"`
	Value  *int `json:"value"`
}

func (p *RawPayload) Bind(r *http.Request) error {
	if p.Opcode == nil || p.Value == nil {
		return errors.New("opcode and value are required")
	}
	for _, v := range []int{*p.Opcode, *p.Value} {
		if v < 0 || v > 255 {
			return errors.New("opcode and value must be between 0 and 255")
		}
	}
	return nil
}

type RawResponse struct {
	Reply       string `json:"reply"`
	NeedsResync bool   `json:"needs_resync"`
}

type StatePayload struct {
	hardware.TurretState
	NeedsResync bool `json:"needs_resync"`
}

func newStatePayload(t onboard.Turret) StatePayload {
	return StatePayload{TurretState: t.State(), NeedsResync: t.NeedsResync()}
}

//---
// Views
//---

// Cycle runs one control cycle for an observation posted by the perception loop.
func Cycle(w http.ResponseWriter, r *http.Request) {
	data := &ObservationPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	report, err := ENV.Turret.Cycle(data.Observation)
	if err != nil {
		render.Render(w, r, ErrTurret(err))
		return
	}

	render.JSON(w, r, report)
}

func GetState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, newStatePayload(ENV.Turret))
}

func Aim(w http.ResponseWriter, r *http.Request) {
	data := &AimPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Turret.Aim(*data.Pan, *data.Tilt); err != nil {
		render.Render(w, r, ErrTurret(err))
		return
	}

	render.JSON(w, r, newStatePayload(ENV.Turret))
}

func Fire(w http.ResponseWriter, r *http.Request) {
	data := &FirePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Turret.Fire(data.FireRequest); err != nil {
		render.Render(w, r, ErrTurret(err))
		return
	}

	render.JSON(w, r, newStatePayload(ENV.Turret))
}

// Resync re-asserts the full hardware state after a channel fault.
func Resync(w http.ResponseWriter, r *http.Request) {
	if err := ENV.Turret.Resync(); err != nil {
		render.Render(w, r, ErrTurret(err))
		return
	}

	render.JSON(w, r, newStatePayload(ENV.Turret))
}

// Raw sends a single frame past every interlock and returns the board's reply. The
// turret needs a resync afterwards.
func Raw(w http.ResponseWriter, r *http.Request) {
	data := &RawPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if ENV.Channel == nil {
		render.Render(w, r, ErrUnavailable(errors.New("no command link")))
		return
	}

	reply, err := RawExchange(ENV.Turret, ENV.Channel, uint8(*data.Opcode), uint8(*data.Value))
	if err != nil {
		render.Render(w, r, ErrTurret(err))
		return
	}

	render.JSON(w, r, RawResponse{Reply: reply, NeedsResync: ENV.Turret.NeedsResync()})
}

// Shots lists journalled shots, newest first. ?limit=n caps the list.
func Shots(w http.ResponseWriter, r *http.Request) {
	limit := DEFAULT_SHOT_LIMIT
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
	}

	if ENV.Journal == nil {
		render.JSON(w, r, []onboard.Shot{})
		return
	}

	shots, err := ENV.Journal.Shots(limit)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, shots)
}
