package comms

import (
	"fmt"

	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/rs/zerolog"
)

// Cmd is an operator command received over the socket, e.g.
// {"cmd": "aim", "name": "pan", "value": 120}.
type Cmd struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type ConductorInterface interface {
	ProcessCommand(cmd Cmd) error
}

// Conductor turns operator commands into turret calls.
type Conductor struct {
	Device onboard.Turret
	log    zerolog.Logger
}

func NewConductor(device onboard.Turret, log zerolog.Logger) *Conductor {
	return &Conductor{
		Device: device,
		log:    log.With().Str("component", "conductor").Logger(),
	}
}

func (c *Conductor) ProcessCommand(cmd Cmd) error {
	c.log.Debug().Str("cmd", cmd.Cmd).Str("name", cmd.Name).Float64("value", cmd.Value).Msg("command")

	switch cmd.Cmd {
	case "aim":
		state := c.Device.State()
		switch cmd.Name {
		case "pan":
			return c.Device.Aim(int(cmd.Value), state.Tilt)
		case "tilt":
			return c.Device.Aim(state.Pan, int(cmd.Value))
		default:
			return fmt.Errorf("unknown axis %q", cmd.Name)
		}

	case "fire":
		switch cmd.Name {
		case "off":
			return c.Device.Fire(hardware.FireRequest{})
		case "rev":
			return c.Device.Fire(hardware.FireRequest{Rev: true})
		case "fire":
			return c.Device.Fire(hardware.FireRequest{Rev: true, Fire: true})
		default:
			return fmt.Errorf("unknown fire mode %q", cmd.Name)
		}

	case "resync":
		return c.Device.Resync()

	default:
		return fmt.Errorf("unable to process command %q", cmd.Cmd)
	}
}
