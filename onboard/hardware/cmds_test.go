package hardware

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

type testSender struct {
	txerr  bool
	frames []serialbus.Frame
}

func (t *testSender) SendFrame(f serialbus.Frame) error {
	if t.txerr {
		return errors.New("this is a simulated tx error")
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *testSender) reset() {
	t.frames = nil
}

func (t *testSender) contains(opcode, value uint8) bool {
	for _, f := range t.frames {
		if f.Opcode == opcode && f.Value == value {
			return true
		}
	}
	return false
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestController() (out *testSender, clock *ManualClock, c *Controller) {
	out = &testSender{}
	clock = NewManualClock(epoch)
	c = NewController(out, clock, DefaultTiming(), zerolog.Nop())
	return
}

// at moves the clock to a scenario offset from epoch.
func at(clock *ManualClock, seconds float64) {
	clock.Set(epoch.Add(time.Duration(math.Round(seconds*1000)) * time.Millisecond))
}

func TestCommands(t *testing.T) {
	Convey("commands map onto the wire opcodes", t, func() {
		So(CMDSetPan(150).Frame(), ShouldResemble, serialbus.Frame{Opcode: 2, Value: 150})
		So(CMDSetTilt(0).Frame(), ShouldResemble, serialbus.Frame{Opcode: 3, Value: 0})
		So(CMDRev(true).Frame(), ShouldResemble, serialbus.Frame{Opcode: 4, Value: 1})
		So(CMDRev(false).Frame(), ShouldResemble, serialbus.Frame{Opcode: 4, Value: 0})
		So(CMDFire(true).Frame(), ShouldResemble, serialbus.Frame{Opcode: 5, Value: 1})
		So(CMDFire(false).Frame(), ShouldResemble, serialbus.Frame{Opcode: 5, Value: 0})
	})
}

func TestPositionController(t *testing.T) {
	out, _, c := createTestController()
	p := c.Position

	Convey("targets are clamped into range and always sent", t, func() {
		out.reset()

		for _, x := range []int{-1, -50, -1000} {
			So(p.SetPan(x), ShouldBeNil)
			So(p.Pan(), ShouldEqual, 0)
		}
		for _, x := range []int{201, 255, 9999} {
			So(p.SetPan(x), ShouldBeNil)
			So(p.Pan(), ShouldEqual, 200)
		}
		So(p.SetTilt(-3), ShouldBeNil)
		So(p.Tilt(), ShouldEqual, 0)
		So(p.SetTilt(300), ShouldBeNil)
		So(p.Tilt(), ShouldEqual, 200)

		So(out.frames, ShouldHaveLength, 8)
		So(out.frames[7], ShouldResemble, serialbus.Frame{Opcode: CMD_TILT, Value: 200})

		Convey("repeating the same target re-sends it", func() {
			out.reset()
			p.SetPan(120)
			p.SetPan(120)
			So(out.frames, ShouldResemble, []serialbus.Frame{{Opcode: CMD_PAN, Value: 120}, {Opcode: CMD_PAN, Value: 120}})
		})
	})

	Convey("MoveBy inverts the camera delta", t, func() {
		c.Restore(100, 100)
		out.reset()

		So(p.MoveBy(10, -5), ShouldBeNil)
		So(p.Pan(), ShouldEqual, 90)
		So(p.Tilt(), ShouldEqual, 105)
		So(out.frames, ShouldResemble, []serialbus.Frame{{Opcode: CMD_PAN, Value: 90}, {Opcode: CMD_TILT, Value: 105}})

		Convey("and saturates at the bounds", func() {
			p.MoveBy(500, -500)
			So(p.Pan(), ShouldEqual, 0)
			So(p.Tilt(), ShouldEqual, 200)
		})
	})

	Convey("steps move one unit", t, func() {
		c.Restore(100, 100)

		p.Step(1)
		So(p.Pan(), ShouldEqual, 99)
		p.Step(-1)
		p.Step(-1)
		So(p.Pan(), ShouldEqual, 101)
		p.StepTilt(1)
		So(p.Tilt(), ShouldEqual, 101)
		p.StepTilt(-7)
		So(p.Tilt(), ShouldEqual, 100)
	})

	Convey("a failed write is reported but the position is kept for resync", t, func() {
		c.Restore(100, 100)
		out.txerr = true
		defer func() { out.txerr = false }()

		So(p.SetPan(42), ShouldNotBeNil)
		So(p.Pan(), ShouldEqual, 42)
	})
}

func TestScanner(t *testing.T) {
	out, _, c := createTestController()
	s := c.Scan

	Convey("the sweep starts heading right", t, func() {
		So(s.Direction(), ShouldEqual, 1)

		Convey("and flips exactly at zero", func() {
			c.Restore(2, 100)
			So(s.Scan(), ShouldBeNil)
			So(c.Position.Pan(), ShouldEqual, 1)
			So(s.Direction(), ShouldEqual, 1)

			So(s.Scan(), ShouldBeNil)
			So(c.Position.Pan(), ShouldEqual, 0)
			So(s.Direction(), ShouldEqual, -1)

			So(s.Scan(), ShouldBeNil)
			So(c.Position.Pan(), ShouldEqual, 1)
		})
	})

	Convey("heading left it flips exactly at 200", t, func() {
		c.Restore(198, 100)
		s.SetDirection(-1)

		s.Scan()
		So(c.Position.Pan(), ShouldEqual, 199)
		So(s.Direction(), ShouldEqual, -1)

		s.Scan()
		So(c.Position.Pan(), ShouldEqual, 200)
		So(s.Direction(), ShouldEqual, 1)

		s.Scan()
		So(c.Position.Pan(), ShouldEqual, 199)
	})

	Convey("a full sweep never leaves the range", t, func() {
		c.Restore(100, 100)
		s.SetDirection(1)
		out.reset()

		for i := 0; i < 1000; i++ {
			s.Scan()
			So(c.Position.Pan(), ShouldBeBetweenOrEqual, 0, 200)
		}
		for _, f := range out.frames {
			So(f.Opcode, ShouldEqual, CMD_PAN)
			So(f.Value, ShouldBeLessThanOrEqualTo, 200)
		}
	})

	Convey("direction follows the sign of the signal", t, func() {
		s.SetDirection(340)
		So(s.Direction(), ShouldEqual, 1)
		s.SetDirection(-2)
		So(s.Direction(), ShouldEqual, -1)

		Convey("and a zero signal keeps it", func() {
			s.SetDirection(0)
			So(s.Direction(), ShouldEqual, -1)
			s.SetDirection(1)
			s.SetDirection(0)
			So(s.Direction(), ShouldEqual, 1)
		})
	})
}
