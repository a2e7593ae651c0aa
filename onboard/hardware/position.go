package hardware

import (
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
)

// PositionController owns pan and tilt. Out of range targets saturate silently at
// the [POS_MIN, POS_MAX] bounds; callers that care compare the stored position with
// what they asked for.
type PositionController struct {
	state *TurretState
	out   serialbus.FrameSender
}

func Clamp(position int) int {
	if position < POS_MIN {
		return POS_MIN
	}
	if position > POS_MAX {
		return POS_MAX
	}
	return position
}

// SetPan stores the clamped target and always sends it, even when unchanged.
func (p *PositionController) SetPan(target int) error {
	p.state.Pan = Clamp(target)
	return send(p.out, CMDSetPan(p.state.Pan))
}

func (p *PositionController) SetTilt(target int) error {
	p.state.Tilt = Clamp(target)
	return send(p.out, CMDSetTilt(p.state.Tilt))
}

// MoveBy applies a camera space delta. Servo axes run opposite to the camera axes,
// hence the subtraction.
func (p *PositionController) MoveBy(dPan, dTilt int) (err error) {
	if err = p.SetPan(p.state.Pan - dPan); err != nil {
		return
	}
	return p.SetTilt(p.state.Tilt - dTilt)
}

// Step moves pan one unit. +1 is right (pan decreases), -1 is left.
func (p *PositionController) Step(direction int) error {
	return p.SetPan(p.state.Pan - sign(direction))
}

// StepTilt moves tilt one unit. +1 is up.
func (p *PositionController) StepTilt(direction int) error {
	return p.SetTilt(p.state.Tilt + sign(direction))
}

// Assert re-sends both absolute positions.
func (p *PositionController) Assert() (err error) {
	if err = p.SetPan(p.state.Pan); err != nil {
		return
	}
	return p.SetTilt(p.state.Tilt)
}

func (p *PositionController) Pan() int  { return p.state.Pan }
func (p *PositionController) Tilt() int { return p.state.Tilt }
