package comms

import (
	"time"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
)

const (
	MSG_STATE    = "state"
	MSG_PRESENCE = "presence"
	MSG_ANNOUNCE = "announce"
	MSG_ERROR    = "error"
)

// Message is everything pushed down the state socket. Type selects which of the
// other fields are set.
type Message struct {
	Type     string                `json:"type"`
	State    *hardware.TurretState `json:"state,omitempty"`
	Present  *bool                 `json:"present,omitempty"`
	Phrase   string                `json:"phrase,omitempty"`
	Error    string                `json:"error,omitempty"`
	Unixtime int64                 `json:"at,omitempty"`
}

func stateMessage(state hardware.TurretState) Message {
	return Message{Type: MSG_STATE, State: &state}
}

func presenceMessage(present bool, at time.Time) Message {
	return Message{Type: MSG_PRESENCE, Present: &present, Unixtime: at.UnixNano() / int64(time.Millisecond)}
}

func announceMessage(phrase string, at time.Time) Message {
	return Message{Type: MSG_ANNOUNCE, Phrase: phrase, Unixtime: at.UnixNano() / int64(time.Millisecond)}
}

func errorMessage(err error) Message {
	return Message{Type: MSG_ERROR, Error: err.Error()}
}
