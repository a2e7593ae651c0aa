package hardware

import (
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
)

const (
	CMD_PAN  = 0x02 // set pan absolute, 0-200
	CMD_TILT = 0x03 // set tilt absolute, 0-200
	CMD_REV  = 0x04 // rev relay, 0/1
	CMD_FIRE = 0x05 // fire relay, 0/1

	POS_MIN  = 0
	POS_MAX  = 200
	POS_HOME = 100
)

// Command is one immutable (opcode, value) emission. It is built per send and never
// retained.
type Command struct {
	Opcode uint8
	Value  uint8
}

func (c Command) Frame() serialbus.Frame {
	return serialbus.Frame{Opcode: c.Opcode, Value: c.Value}
}

// Callers must clamp positions before building a command.
func CMDSetPan(position int) Command {
	return Command{Opcode: CMD_PAN, Value: uint8(position)}
}

func CMDSetTilt(position int) Command {
	return Command{Opcode: CMD_TILT, Value: uint8(position)}
}

func CMDRev(on bool) Command {
	return Command{Opcode: CMD_REV, Value: relayValue(on)}
}

func CMDFire(on bool) Command {
	return Command{Opcode: CMD_FIRE, Value: relayValue(on)}
}

func relayValue(on bool) uint8 {
	if on {
		return 1
	}
	return 0
}

func send(out serialbus.FrameSender, cmd Command) error {
	return out.SendFrame(cmd.Frame())
}
