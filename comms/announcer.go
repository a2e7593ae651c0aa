package comms

import (
	"sync"
	"time"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
)

const (
	PHRASE_ACTIVE = "active"
	PHRASE_SEARCH = "search"

	SEARCH_INTERVAL = 5 * time.Second
)

// Announcer decides when the speaker should say something: "active" when a target
// appears, and "search" while nothing is in view, at most once per interval counted
// from the last announcement of either kind.
type Announcer struct {
	lock     *sync.Mutex
	clock    hardware.Clock
	interval time.Duration
	present  bool
	last     time.Time
	say      func(phrase string, at time.Time)
}

func NewAnnouncer(clock hardware.Clock, interval time.Duration, say func(phrase string, at time.Time)) *Announcer {
	return &Announcer{
		lock:     new(sync.Mutex),
		clock:    clock,
		interval: interval,
		say:      say,
	}
}

func (a *Announcer) PresenceChanged(present bool, at time.Time) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.present = present
	if present {
		a.announce(PHRASE_ACTIVE, at)
	}
}

// Tick announces a search if the interval has passed with nothing in view.
func (a *Announcer) Tick() {
	a.lock.Lock()
	defer a.lock.Unlock()

	now := a.clock.Now()
	if !a.present && now.Sub(a.last) >= a.interval {
		a.announce(PHRASE_SEARCH, now)
	}
}

func (a *Announcer) announce(phrase string, at time.Time) {
	a.last = at
	if a.say != nil {
		a.say(phrase, at)
	}
}
