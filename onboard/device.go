package onboard

import (
	"sync"
	"time"

	"github.com/CodedInternet/sentrygun/logging"
	deviceErrors "github.com/CodedInternet/sentrygun/onboard/errors"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/rs/zerolog"
)

const (
	MODE_TRACK    = "track"
	MODE_SCAN     = "scan"
	MODE_DEFERRED = "deferred"
)

// Shot is one closing of the fire relay.
type Shot struct {
	At   time.Time `json:"at"`
	Pan  int       `json:"pan"`
	Tilt int       `json:"tilt"`
}

// Journal persists what the turret was doing so a restarted session can resume from
// the last known position.
type Journal interface {
	LastState() (state hardware.TurretState, ok bool, err error)
	RecordState(state hardware.TurretState) error
	RecordShot(shot Shot) error
}

// Listener is told about presence edges and about the state after every cycle.
type Listener interface {
	PresenceChanged(present bool, at time.Time)
	StateChanged(state hardware.TurretState)
}

// Report is the outcome of a single control cycle.
type Report struct {
	Mode   string               `json:"mode"`
	Intent hardware.FireRequest `json:"intent"`
	State  hardware.TurretState `json:"state"`
}

type Turret interface {
	Cycle(obs Observation) (Report, error)
	Aim(pan, tilt int) error
	Fire(req hardware.FireRequest) error
	Raw(opcode, value uint8) error
	Resync() error
	State() hardware.TurretState
	NeedsResync() bool
}

// SentryTurret drives one hardware session. Cycles, operator commands and resyncs
// are serialized; only one runs at a time.
type SentryTurret struct {
	config    TurretConfig
	ctrl      *hardware.Controller
	out       serialbus.FrameSender
	clock     hardware.Clock
	journal   Journal
	listeners []Listener
	log       zerolog.Logger
	cycleLog  zerolog.Logger

	lock        *sync.Mutex
	desynced    bool
	present     bool
	lastJournal time.Time
	lastRelays  hardware.FireRequest
}

// NewSentryTurret builds the controller and puts the hardware into a known state:
// relays off and the last journalled (or home) position asserted.
func NewSentryTurret(config TurretConfig, out serialbus.FrameSender, clock hardware.Clock, journal Journal, log zerolog.Logger) (t *SentryTurret, err error) {
	if err = config.Validate(); err != nil {
		return nil, err
	}

	t = &SentryTurret{
		config:  config,
		out:     out,
		clock:   clock,
		journal: journal,
		log:     log.With().Str("component", "turret").Logger(),
		lock:    new(sync.Mutex),
	}
	t.cycleLog = logging.Sampled(t.log)
	t.ctrl = hardware.NewController(out, clock, config.Timing, log)
	t.ctrl.Fire.OnShot = t.recordShot
	t.ctrl.Restore(config.Home.Pan, config.Home.Tilt)

	if journal != nil {
		last, ok, jErr := journal.LastState()
		switch {
		case jErr != nil:
			t.log.Warn().Err(jErr).Msg("unable to read journal, starting from home")
		case ok:
			t.ctrl.Resume(last)
			state := t.ctrl.State()
			t.log.Info().Int("pan", state.Pan).Int("tilt", state.Tilt).Bool("mid_reload", last.Reloading).
				Msg("resuming journalled position")
		}
	}

	if err = t.ctrl.InitializeHardwareState(); err != nil {
		t.desynced = true
		return t, err
	}

	return t, nil
}

func (t *SentryTurret) AddListener(l Listener) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.listeners = append(t.listeners, l)
}

// Cycle runs one control cycle for a perception observation. While a reload is in
// progress the observation is ignored and only the reload is advanced.
func (t *SentryTurret) Cycle(obs Observation) (r Report, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.desynced {
		return Report{State: t.ctrl.State()}, deviceErrors.ErrNeedsResync
	}

	t.notePresence(obs.Present)

	switch {
	case t.ctrl.Fire.Reloading():
		r.Mode = MODE_DEFERRED
		err = t.ctrl.Fire.Update(hardware.FireRequest{})

	case obs.Present:
		r.Mode = MODE_TRACK
		r.Intent = t.config.Targeting.Intent(obs)
		dPan, dTilt := t.config.Targeting.Delta(obs)

		t.ctrl.Scan.SetDirection(obs.DX)
		if err = t.ctrl.Position.MoveBy(dPan, dTilt); err == nil {
			err = t.ctrl.Fire.Update(r.Intent)
		}

	default:
		r.Mode = MODE_SCAN
		if err = t.ctrl.Scan.Scan(); err == nil {
			err = t.ctrl.Fire.Update(hardware.FireRequest{})
		}
	}

	t.cycleLog.Debug().Str("mode", r.Mode).Int("dx", obs.DX).Int("dy", obs.DY).
		Bool("rev", r.Intent.Rev).Bool("fire", r.Intent.Fire).Msg("cycle")

	return t.finish(r, err)
}

// Aim moves straight to an absolute position. Refused while reloading.
func (t *SentryTurret) Aim(pan, tilt int) (err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.desynced {
		return deviceErrors.ErrNeedsResync
	}
	if t.ctrl.Fire.Reloading() {
		return deviceErrors.ErrReloading
	}

	if err = t.ctrl.Position.SetPan(pan); err == nil {
		err = t.ctrl.Position.SetTilt(tilt)
	}
	_, err = t.finish(Report{}, err)
	return err
}

// Fire runs the fire state machine with an operator supplied request. While a reload
// is pending the request is not applied: the reload is advanced and ErrReloading
// returned, so the caller can retry once it completes.
func (t *SentryTurret) Fire(req hardware.FireRequest) (err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.desynced {
		return deviceErrors.ErrNeedsResync
	}

	if t.ctrl.Fire.Reloading() {
		if req.Fire && !req.Rev {
			return deviceErrors.InvalidRequestError{Rev: req.Rev, Fire: req.Fire}
		}
		if _, err = t.finish(Report{}, t.ctrl.Fire.Update(hardware.FireRequest{})); err != nil {
			return err
		}
		return deviceErrors.ErrReloading
	}

	_, err = t.finish(Report{Intent: req}, t.ctrl.Fire.Update(req))
	return err
}

// Raw puts an arbitrary frame on the wire. It bypasses every interlock, so the
// cached state can no longer be trusted and a resync is required afterwards.
func (t *SentryTurret) Raw(opcode, value uint8) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	err := t.out.SendFrame(serialbus.Frame{Opcode: opcode, Value: value})
	t.desynced = true
	t.log.Warn().Uint8("opcode", opcode).Uint8("value", value).Msg("raw frame sent, resync required")
	return err
}

// Resync re-asserts the whole state regardless of the cached relay flags. Required
// after any channel error.
func (t *SentryTurret) Resync() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.ctrl.InitializeHardwareState(); err != nil {
		t.desynced = true
		t.log.Error().Err(err).Msg("resync failed")
		return err
	}

	t.desynced = false
	t.log.Info().Int("pan", t.ctrl.Position.Pan()).Int("tilt", t.ctrl.Position.Tilt()).Msg("resynced")
	t.journalState(t.ctrl.State(), true)
	return nil
}

func (t *SentryTurret) State() hardware.TurretState {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.ctrl.State()
}

func (t *SentryTurret) NeedsResync() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.desynced
}

func (t *SentryTurret) finish(r Report, err error) (Report, error) {
	if deviceErrors.IsChannelError(err) {
		t.desynced = true
		t.log.Error().Err(err).Msg("channel failure, turret needs resync")
	}

	r.State = t.ctrl.State()
	relays := hardware.FireRequest{Rev: r.State.Rev, Fire: r.State.Fire}
	t.journalState(r.State, relays != t.lastRelays)
	t.lastRelays = relays

	for _, l := range t.listeners {
		l.StateChanged(r.State)
	}

	return r, err
}

func (t *SentryTurret) notePresence(present bool) {
	if present == t.present {
		return
	}
	t.present = present

	now := t.clock.Now()
	t.log.Info().Bool("present", present).Msg("target presence changed")
	for _, l := range t.listeners {
		l.PresenceChanged(present, now)
	}
}

func (t *SentryTurret) journalState(state hardware.TurretState, force bool) {
	if t.journal == nil {
		return
	}

	now := t.clock.Now()
	if !force && now.Sub(t.lastJournal) < t.config.JournalInterval {
		return
	}
	t.lastJournal = now

	if err := t.journal.RecordState(state); err != nil {
		t.log.Warn().Err(err).Msg("unable to journal state")
	}
}

func (t *SentryTurret) recordShot(at time.Time, state hardware.TurretState) {
	if t.journal == nil {
		return
	}

	if err := t.journal.RecordShot(Shot{At: at, Pan: state.Pan, Tilt: state.Tilt}); err != nil {
		t.log.Warn().Err(err).Msg("unable to journal shot")
	}
}
