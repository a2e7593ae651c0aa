package serialbus

import (
	"errors"
	"fmt"
)

// FrameSize is the fixed length of every frame on the link. There is no header,
// checksum or terminator.
const FrameSize = 2

var (
	ERR_SHORT_FRAME = errors.New("frame must be exactly 2 bytes")
)

// Frame is a single (opcode, value) pair as written to the controller board.
type Frame struct {
	Opcode uint8
	Value  uint8
}

func (f Frame) String() string {
	return fmt.Sprintf("[%d %d]", f.Opcode, f.Value)
}

func (f Frame) toByteArray() []byte {
	return []byte{f.Opcode, f.Value}
}

// FrameFromByteArray decodes a raw frame. Used by simulated links and diagnostics.
func FrameFromByteArray(raw []byte) (f Frame, err error) {
	if len(raw) != FrameSize {
		return f, ERR_SHORT_FRAME
	}

	f.Opcode = raw[0]
	f.Value = raw[1]
	return
}
