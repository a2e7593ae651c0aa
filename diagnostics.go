package main

import (
	"math"
	"time"

	"github.com/CodedInternet/sentrygun/onboard"
	deviceErrors "github.com/CodedInternet/sentrygun/onboard/errors"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
)

const (
	DIAG_PERIOD  = 50 * time.Millisecond
	SWEEP_RADIUS = 40
	SWEEP_CENTRE = hardware.POS_HOME
)

// SweepPosition traces a circle around home, one radian per second.
func SweepPosition(elapsed time.Duration) (pan, tilt int) {
	t := elapsed.Seconds()
	return int(SWEEP_CENTRE + math.Sin(t)*SWEEP_RADIUS), int(SWEEP_CENTRE + math.Cos(t)*SWEEP_RADIUS)
}

// Sweep exercises both servos for duration.
func Sweep(turret onboard.Turret, clock hardware.Clock, duration time.Duration) (steps int, err error) {
	start := clock.Now()
	for elapsed := time.Duration(0); elapsed < duration; elapsed = clock.Now().Sub(start) {
		pan, tilt := SweepPosition(elapsed)
		if err = turret.Aim(pan, tilt); err != nil {
			return
		}
		steps++
		clock.Sleep(DIAG_PERIOD)
	}
	return
}

// FireLoop holds a fire request for duration, letting the interlocks pace the shots,
// and returns how many shots were taken. The relays are released afterwards.
func FireLoop(turret onboard.Turret, clock hardware.Clock, duration time.Duration) (shots int, err error) {
	firing := false
	start := clock.Now()

	for clock.Now().Sub(start) < duration {
		err = turret.Fire(hardware.FireRequest{Rev: true, Fire: true})
		if err != nil && err != deviceErrors.ErrReloading {
			return
		}

		state := turret.State()
		if state.Fire && !firing {
			shots++
		}
		firing = state.Fire
		clock.Sleep(DIAG_PERIOD)
	}

	if err = turret.Fire(hardware.FireRequest{}); err == deviceErrors.ErrReloading {
		err = nil
	}
	return shots, err
}

// RawExchange sends one raw frame and returns the board's reply to it. Replies queued
// by earlier frames are discarded first. Links without a read side return no reply.
func RawExchange(turret onboard.Turret, channel *serialbus.Channel, opcode, value uint8) (reply string, err error) {
	reader, ok := channel.Reader()
	if ok {
		if _, err = serialbus.Drain(reader); err != nil {
			return
		}
	}

	if err = turret.Raw(opcode, value); err != nil || !ok {
		return
	}
	return serialbus.ReadLine(reader)
}
