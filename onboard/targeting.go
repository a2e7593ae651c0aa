package onboard

import (
	"math"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/go-gl/mathgl/mgl64"
)

// Observation is what the perception loop reports once per frame: the target's pixel
// offset from the frame centre and whether anything was detected at all.
type Observation struct {
	Present     bool `json:"present"`
	DX          int  `json:"dx"`
	DY          int  `json:"dy"`
	FrameWidth  int  `json:"frame_width,omitempty"`
	FrameHeight int  `json:"frame_height,omitempty"`
}

// TargetingConfig maps pixel offsets onto servo deltas (a proportional only loop)
// and onto fire intent tiers. A target is inside the fire tier when both offsets are
// under frame/FireDivisor, inside the rev tier under frame/RevDivisor.
type TargetingConfig struct {
	PanGain     float64 `yaml:"pan_gain"`
	TiltGain    float64 `yaml:"tilt_gain"`
	FireDivisor int     `yaml:"fire_divisor"`
	RevDivisor  int     `yaml:"rev_divisor"`
	FrameWidth  int     `yaml:"frame_width"`
	FrameHeight int     `yaml:"frame_height"`
}

func DefaultTargeting() TargetingConfig {
	return TargetingConfig{
		PanGain:     0.03,
		TiltGain:    0.05, // tilt needs a quicker response
		FireDivisor: 10,
		RevDivisor:  4,
		FrameWidth:  640,
		FrameHeight: 480,
	}
}

// Delta converts the offset into a camera space move, truncated towards zero.
func (t TargetingConfig) Delta(obs Observation) (dPan, dTilt int) {
	gain := mgl64.Diag2(mgl64.Vec2{t.PanGain, t.TiltGain})
	move := gain.Mul2x1(mgl64.Vec2{float64(obs.DX), float64(obs.DY)})

	return int(move.X()), int(move.Y())
}

// Intent picks the fire tier for a visible target.
func (t TargetingConfig) Intent(obs Observation) hardware.FireRequest {
	if !obs.Present {
		return hardware.FireRequest{}
	}

	width, height := t.frame(obs)
	dx, dy := abs(obs.DX), abs(obs.DY)

	switch {
	case dx < width/t.FireDivisor && dy < height/t.FireDivisor:
		return hardware.FireRequest{Rev: true, Fire: true}
	case dx < width/t.RevDivisor && dy < height/t.RevDivisor:
		return hardware.FireRequest{Rev: true}
	default:
		return hardware.FireRequest{}
	}
}

func (t TargetingConfig) frame(obs Observation) (width, height int) {
	width, height = obs.FrameWidth, obs.FrameHeight
	if width <= 0 {
		width = t.FrameWidth
	}
	if height <= 0 {
		height = t.FrameHeight
	}
	return
}

func abs(v int) int {
	return int(math.Abs(float64(v)))
}
