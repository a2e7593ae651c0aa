package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNeedsResync is returned by every cycle after a ChannelError until the full
	// turret state has been re-asserted.
	ErrNeedsResync = errors.New("turret state out of sync with hardware; resync required")

	ErrReloading = errors.New("reload in progress")
)

// InvalidRequestError is a contract violation by the caller: fire was requested
// without rev. Nothing is sent and no state changes.
type InvalidRequestError struct {
	Rev, Fire bool
}

func (err InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid fire request (rev=%v fire=%v): cannot fire without revving", err.Rev, err.Fire)
}

// ChannelError wraps a failed write on the command link.
type ChannelError struct {
	Opcode uint8
	Value  uint8
	Err    error
}

func (err ChannelError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("channel write failed for frame [%d %d]", err.Opcode, err.Value)
	}
	return fmt.Sprintf("channel write failed for frame [%d %d]: %v", err.Opcode, err.Value, err.Err)
}

func (err ChannelError) Unwrap() error {
	return err.Err
}

// IsInvalidRequest reports whether err is, or wraps, an InvalidRequestError.
func IsInvalidRequest(err error) bool {
	var target InvalidRequestError
	return errors.As(err, &target)
}

// IsChannelError reports whether err is, or wraps, a ChannelError.
func IsChannelError(err error) bool {
	var target ChannelError
	return errors.As(err, &target)
}
