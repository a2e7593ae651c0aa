package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/abiosoft/ishell/v2"
	"github.com/rs/zerolog"
)

var errUsage = errors.New("incorrect number of arguments")

func parseInts(args []string, n int) (values []int, err error) {
	if len(args) != n {
		return nil, errUsage
	}
	values = make([]int, n)
	for i, arg := range args {
		if values[i], err = strconv.Atoi(arg); err != nil {
			return nil, err
		}
	}
	return
}

func parseSeconds(args []string, fallback time.Duration) (time.Duration, error) {
	if len(args) == 0 {
		return fallback, nil
	}
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func createUser(c *ishell.Context, role string) {
	// disable the '>>>' for cleaner same line input.
	c.ShowPrompt(false)
	defer c.ShowPrompt(true) // yes, revert when done.

	// get email
	var email string
	if len(c.Args) >= 1 {
		email = c.Args[0]
	} else {
		c.Print("Email: ")
		email = c.ReadLine()
	}

	// get password
	var password string
	if len(c.Args) >= 2 {
		password = c.Args[1]
	} else {
		c.Print("Password: ")
		password = c.ReadPassword()
	}

	user, err := newUser(email, password, role)
	if err != nil {
		c.Err(err)
		return
	}
	if err = ENV.DB.Save(user); err != nil {
		c.Err(err)
		return
	}

	c.Printf("Created %s %s\n", role, email)
}

// newShell builds the development shell used at the bench.
func newShell(turret *onboard.SentryTurret, channel *serialbus.Channel, log zerolog.Logger) *ishell.Shell {
	clock := hardware.SystemClock{}

	shell := ishell.New()
	shell.Println("Sentry turret development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createsuperuser",
		Help: "createsuperuser <email> <password> - a user allowed to control the turret",
		Func: func(c *ishell.Context) { createUser(c, ROLE_OPERATOR) },
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "createobserver",
		Help: "createobserver <email> <password> - a user who may only watch",
		Func: func(c *ishell.Context) { createUser(c, ROLE_OBSERVER) },
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send <opcode> <value> - raw frame, bypasses every interlock",
		Func: func(c *ishell.Context) {
			values, err := parseInts(c.Args, 2)
			if err != nil {
				c.Err(err)
				return
			}
			for _, v := range values {
				if v < 0 || v > 255 {
					c.Err(errors.New("bytes must be between 0 and 255"))
					return
				}
			}

			reply, err := RawExchange(turret, channel, uint8(values[0]), uint8(values[1]))
			c.Printf("Sent bytes: %d %d\n", values[0], values[1])
			switch {
			case err != nil:
				c.Err(err)
			case reply == "":
				c.Println("Board: (no response)")
			default:
				c.Println("Board:", reply)
			}
			c.Println("Run resync before resuming normal operation")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "pan",
		Help: "pan <position>",
		Func: func(c *ishell.Context) {
			values, err := parseInts(c.Args, 1)
			if err != nil {
				c.Err(err)
				return
			}
			if err = turret.Aim(values[0], turret.State().Tilt); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "tilt",
		Help: "tilt <position>",
		Func: func(c *ishell.Context) {
			values, err := parseInts(c.Args, 1)
			if err != nil {
				c.Err(err)
				return
			}
			if err = turret.Aim(turret.State().Pan, values[0]); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "aim",
		Help: "aim <pan> <tilt>",
		Func: func(c *ishell.Context) {
			values, err := parseInts(c.Args, 2)
			if err != nil {
				c.Err(err)
				return
			}
			if err = turret.Aim(values[0], values[1]); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "sweep",
		Help: "sweep [seconds] - trace a circle with both servos",
		Func: func(c *ishell.Context) {
			duration, err := parseSeconds(c.Args, 10*time.Second)
			if err != nil {
				c.Err(err)
				return
			}

			c.ProgressBar().Indeterminate(true)
			c.ProgressBar().Start()
			steps, err := Sweep(turret, clock, duration)
			c.ProgressBar().Stop()

			if err != nil {
				c.Err(err)
			}
			c.Printf("Sweep complete after %d steps\n", steps)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "fireloop",
		Help: "fireloop [seconds] - hold the trigger and let the interlocks pace the shots",
		Func: func(c *ishell.Context) {
			duration, err := parseSeconds(c.Args, 10*time.Second)
			if err != nil {
				c.Err(err)
				return
			}

			c.ProgressBar().Indeterminate(true)
			c.ProgressBar().Start()
			shots, err := FireLoop(turret, clock, duration)
			c.ProgressBar().Stop()

			if err != nil {
				c.Err(err)
			}
			c.Printf("%d shots fired\n", shots)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "Print the cached turret state",
		Func: func(c *ishell.Context) {
			state := turret.State()
			c.Printf("pan=%d tilt=%d rev=%v fire=%v reloading=%v scan=%d needs_resync=%v tx=%d\n",
				state.Pan, state.Tilt, state.Rev, state.Fire, state.Reloading, state.ScanDirection,
				turret.NeedsResync(), channel.TxCount())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "resync",
		Help: "Re-assert relays and position on the board",
		Func: func(c *ishell.Context) {
			if err := turret.Resync(); err != nil {
				c.Err(err)
				return
			}
			c.Println("Resynced")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "shots",
		Help: "shots [n] - list the most recent shots",
		Func: func(c *ishell.Context) {
			limit := 10
			if len(c.Args) == 1 {
				values, err := parseInts(c.Args, 1)
				if err != nil {
					c.Err(err)
					return
				}
				limit = values[0]
			}

			shots, err := ENV.Journal.Shots(limit)
			if err != nil {
				c.Err(err)
				return
			}
			for _, shot := range shots {
				c.Printf("%s pan=%d tilt=%d\n", shot.At.Format(time.RFC3339), shot.Pan, shot.Tilt)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "ports",
		Help: "List the serial ports on this host",
		Func: func(c *ishell.Context) {
			ports, err := serialbus.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	})

	log.Debug().Msg("development shell ready")
	return shell
}
