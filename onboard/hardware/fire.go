package hardware

import (
	"time"

	deviceErrors "github.com/CodedInternet/sentrygun/onboard/errors"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/rs/zerolog"
)

const (
	FIRE_WARMUP   = 500 * time.Millisecond // rev time required before the fire relay may close
	FIRE_DURATION = 250 * time.Millisecond // how long the fire relay is held
	FIRE_COOLDOWN = 3 * time.Second        // measured from the start of the last shot

	RELOAD_DWELL      = time.Second
	RELOAD_FEED_ANGLE = 25
)

// Timing holds the interlock parameters. The zero value is not usable, start from
// DefaultTiming.
type Timing struct {
	Warmup    time.Duration `yaml:"warmup"`
	Duration  time.Duration `yaml:"duration"`
	Cooldown  time.Duration `yaml:"cooldown"`
	Dwell     time.Duration `yaml:"reload_dwell"`
	FeedAngle int           `yaml:"reload_feed_angle"`

	// BlockingReload sleeps for the dwell inside Update instead of deferring the
	// tilt restore to a later cycle.
	BlockingReload bool `yaml:"blocking_reload"`
}

func DefaultTiming() Timing {
	return Timing{
		Warmup:    FIRE_WARMUP,
		Duration:  FIRE_DURATION,
		Cooldown:  FIRE_COOLDOWN,
		Dwell:     RELOAD_DWELL,
		FeedAngle: RELOAD_FEED_ANGLE,
	}
}

type pendingReload struct {
	since time.Time
}

// FireControl owns the rev and fire relays and enforces the warmup, shot duration and
// cooldown interlocks. Fire is never active without rev.
type FireControl struct {
	state  *TurretState
	pos    *PositionController
	out    serialbus.FrameSender
	clock  Clock
	timing Timing
	log    zerolog.Logger

	reload *pendingReload

	// reloadOwed is set once a shot has to be followed by a reload and cleared when
	// the reload starts. It survives a failed relay cut and the resync after it.
	reloadOwed bool

	// OnShot, if set, is called on every inactive to active transition of the fire
	// relay.
	OnShot func(at time.Time, state TurretState)
}

// Update evaluates one (rev, fire) request. At most one relay transition per relay is
// sent per call.
func (f *FireControl) Update(req FireRequest) (err error) {
	if req.Fire && !req.Rev {
		return deviceErrors.InvalidRequestError{Rev: req.Rev, Fire: req.Fire}
	}

	now := f.clock.Now()

	// nothing else is accepted until the feed tilt has been undone
	if f.reload != nil {
		if now.Sub(f.reload.since) >= f.timing.Dwell {
			return f.finishReload()
		}
		return nil
	}

	if f.reloadOwed {
		if err = f.ForceRelaysOff(); err != nil {
			return
		}
		return f.startReload(now)
	}

	if !f.state.LastFireStart.IsZero() {
		sinceFire := now.Sub(f.state.LastFireStart)
		inCooldown := sinceFire > f.timing.Duration && sinceFire < f.timing.Cooldown
		overheld := f.state.Fire && sinceFire > f.timing.Duration

		if inCooldown || overheld {
			if f.state.Fire {
				f.reloadOwed = true
			}
			if err = f.ForceRelaysOff(); err != nil {
				return
			}
			if f.reloadOwed {
				return f.startReload(now)
			}
			return nil
		}
	}

	if f.state.Rev && req.Fire && now.Sub(f.state.LastRevStart) >= f.timing.Warmup {
		err = f.setFire(true, now)
	} else {
		err = f.setFire(false, now)
	}
	if err != nil {
		return
	}

	return f.setRev(req.Rev, now)
}

// ForceRelaysOff opens fire then rev, sending only the relays whose cached state
// differs.
func (f *FireControl) ForceRelaysOff() (err error) {
	now := f.clock.Now()
	if err = f.setFire(false, now); err != nil {
		return
	}
	return f.setRev(false, now)
}

// InitializeRelays sends rev=0 and fire=0 regardless of the cached flags, so the
// physical relays start from a known state.
func (f *FireControl) InitializeRelays() (err error) {
	if err = send(f.out, CMDFire(false)); err != nil {
		return
	}
	f.state.Fire = false

	if err = send(f.out, CMDRev(false)); err != nil {
		return
	}
	f.state.Rev = false
	return nil
}

func (f *FireControl) Reloading() bool {
	return f.reload != nil
}

// ReloadOwed reports a shot whose reload has not started yet, typically because the
// relay cut before it failed.
func (f *FireControl) ReloadOwed() bool {
	return f.reloadOwed
}

// ReloadDone is the earliest time a cycle may restore the tilt. Zero when idle.
func (f *FireControl) ReloadDone() time.Time {
	if f.reload == nil {
		return time.Time{}
	}
	return f.reload.since.Add(f.timing.Dwell)
}

func (f *FireControl) setRev(on bool, now time.Time) error {
	if on == f.state.Rev {
		return nil
	}
	if err := send(f.out, CMDRev(on)); err != nil {
		return err
	}
	if on {
		f.state.LastRevStart = now
	}
	f.state.Rev = on
	return nil
}

func (f *FireControl) setFire(on bool, now time.Time) error {
	if on == f.state.Fire {
		return nil
	}
	if err := send(f.out, CMDFire(on)); err != nil {
		return err
	}
	f.state.Fire = on
	if on {
		f.state.LastFireStart = now
		f.log.Info().Time("at", now).Int("pan", f.state.Pan).Int("tilt", f.state.Tilt).Msg("fire")
		if f.OnShot != nil {
			f.OnShot(now, *f.state)
		}
	}
	return nil
}

// startReload tilts the turret down to the feed angle so the next round drops into
// the feeder.
func (f *FireControl) startReload(now time.Time) error {
	f.reloadOwed = false
	f.reload = &pendingReload{since: now}
	f.state.Reloading = true
	f.state.RestoreTilt = f.state.Tilt
	f.log.Info().Int("restore_tilt", f.state.Tilt).Dur("dwell", f.timing.Dwell).Msg("reload")

	if err := f.pos.SetTilt(f.timing.FeedAngle); err != nil {
		return err
	}

	if f.timing.BlockingReload {
		f.clock.Sleep(f.timing.Dwell)
		return f.finishReload()
	}
	return nil
}

func (f *FireControl) finishReload() error {
	tilt := f.state.RestoreTilt
	f.reload = nil
	f.state.Reloading = false
	f.state.RestoreTilt = 0
	f.log.Debug().Int("tilt", tilt).Msg("reload complete")

	return f.pos.SetTilt(tilt)
}
