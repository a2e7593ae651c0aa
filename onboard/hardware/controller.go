package hardware

import (
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/rs/zerolog"
)

// Controller ties the position, fire and scan components to a single TurretState and
// a single frame sender.
type Controller struct {
	Position *PositionController
	Fire     *FireControl
	Scan     *Scanner

	state *TurretState
	out   serialbus.FrameSender
}

func NewController(out serialbus.FrameSender, clock Clock, timing Timing, log zerolog.Logger) (c *Controller) {
	state := &TurretState{
		Pan:           POS_HOME,
		Tilt:          POS_HOME,
		ScanDirection: 1,
	}

	c = &Controller{
		state: state,
		out:   out,
	}
	c.Position = &PositionController{state: state, out: out}
	c.Fire = &FireControl{
		state:  state,
		pos:    c.Position,
		out:    out,
		clock:  clock,
		timing: timing,
		log:    log.With().Str("component", "fire").Logger(),
	}
	c.Scan = &Scanner{state: state, pos: c.Position}

	return
}

// State returns a copy of the current state.
func (c *Controller) State() TurretState {
	return *c.state
}

// Restore seeds the stored position without sending anything. Used before
// InitializeHardwareState to resume from a journalled position.
func (c *Controller) Restore(pan, tilt int) {
	c.state.Pan = Clamp(pan)
	c.state.Tilt = Clamp(tilt)
}

// Resume seeds the position from a journalled state. A state captured mid reload
// resumes at the tilt the reload would have restored, not at the feed angle.
func (c *Controller) Resume(last TurretState) {
	tilt := last.Tilt
	if last.Reloading {
		tilt = last.RestoreTilt
	}
	c.Restore(last.Pan, tilt)
}

// InitializeHardwareState asserts the full state unconditionally: both relays off,
// then both absolute positions. Called at session start and after a channel fault.
func (c *Controller) InitializeHardwareState() (err error) {
	if err = c.Fire.InitializeRelays(); err != nil {
		return
	}
	return c.Position.Assert()
}
