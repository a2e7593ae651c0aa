package onboard

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/rs/zerolog"
)

// SIM_REPLY_LIMIT bounds the unread echo backlog. Older replies are dropped first.
const SIM_REPLY_LIMIT = 4096

// SimulatedBoard stands in for the controller board on the other end of the serial
// link. It decodes frames, applies them to a model of the servos and relays and
// records anything the real board would have been damaged by.
type SimulatedBoard struct {
	lock    *sync.Mutex
	log     zerolog.Logger
	pending []byte
	replies bytes.Buffer

	Pan, Tilt  int
	Rev, Fire  bool
	Frames     []serialbus.Frame
	Violations []string

	// Echo queues an "ok <opcode> <value>" line for every frame, which is what the
	// diagnostic sketch prints.
	Echo bool

	// History keeps only the last History frames in Frames. Zero keeps them all.
	History int
}

func NewSimulatedBoard(log zerolog.Logger) *SimulatedBoard {
	return &SimulatedBoard{
		lock: new(sync.Mutex),
		log:  log.With().Str("component", "simulator").Logger(),
		Pan:  hardware.POS_HOME,
		Tilt: hardware.POS_HOME,
	}
}

func (s *SimulatedBoard) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.pending = append(s.pending, p...)
	for len(s.pending) >= serialbus.FrameSize {
		f, _ := serialbus.FrameFromByteArray(s.pending[:serialbus.FrameSize])
		s.pending = s.pending[serialbus.FrameSize:]
		s.apply(f)
	}

	return len(p), nil
}

func (s *SimulatedBoard) Read(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.replies.Len() == 0 {
		return 0, nil // behaves like a read timeout
	}
	return s.replies.Read(p)
}

func (s *SimulatedBoard) Close() error {
	return nil
}

func (s *SimulatedBoard) apply(f serialbus.Frame) {
	s.Frames = append(s.Frames, f)
	if s.History > 0 && len(s.Frames) > s.History {
		s.Frames = append(s.Frames[:0], s.Frames[len(s.Frames)-s.History:]...)
	}

	switch f.Opcode {
	case hardware.CMD_PAN:
		if f.Value > hardware.POS_MAX {
			s.violation("pan %d beyond servo range", f.Value)
		}
		s.Pan = int(f.Value)
	case hardware.CMD_TILT:
		if f.Value > hardware.POS_MAX {
			s.violation("tilt %d beyond servo range", f.Value)
		}
		s.Tilt = int(f.Value)
	case hardware.CMD_REV:
		s.Rev = f.Value != 0
		if !s.Rev && s.Fire {
			s.violation("rev released while fire held")
		}
	case hardware.CMD_FIRE:
		s.Fire = f.Value != 0
		if s.Fire && !s.Rev {
			s.violation("fire closed without rev")
		}
	default:
		s.log.Warn().Uint8("opcode", f.Opcode).Msg("unknown opcode ignored")
	}

	s.log.Debug().Int("pan", s.Pan).Int("tilt", s.Tilt).Bool("rev", s.Rev).Bool("fire", s.Fire).Msg("rx")

	if s.Echo {
		s.echo(fmt.Sprintf("ok %d %d\n", f.Opcode, f.Value))
	}
}

func (s *SimulatedBoard) echo(line string) {
	for s.replies.Len() > 0 && s.replies.Len()+len(line) > SIM_REPLY_LIMIT {
		if _, err := s.replies.ReadString('\n'); err != nil {
			s.replies.Reset()
		}
	}
	s.replies.WriteString(line)
}

// Pending is the number of reply bytes not yet read.
func (s *SimulatedBoard) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.replies.Len()
}

func (s *SimulatedBoard) violation(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.Violations = append(s.Violations, msg)
	s.log.Error().Msg(msg)
}

// Snapshot returns the board's view of the hardware.
func (s *SimulatedBoard) Snapshot() (pan, tilt int, rev, fire bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.Pan, s.Tilt, s.Rev, s.Fire
}
