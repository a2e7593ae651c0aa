package comms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type mockTurret struct {
	state   hardware.TurretState
	aims    [][2]int
	fires   []hardware.FireRequest
	resyncs int
	err     error
}

func (m *mockTurret) Cycle(obs onboard.Observation) (onboard.Report, error) {
	return onboard.Report{State: m.state}, m.err
}

func (m *mockTurret) Aim(pan, tilt int) error {
	m.aims = append(m.aims, [2]int{pan, tilt})
	return m.err
}

func (m *mockTurret) Fire(req hardware.FireRequest) error {
	m.fires = append(m.fires, req)
	return m.err
}

func (m *mockTurret) Raw(opcode, value uint8) error { return m.err }

func (m *mockTurret) Resync() error {
	m.resyncs++
	return m.err
}

func (m *mockTurret) State() hardware.TurretState { return m.state }

func (m *mockTurret) NeedsResync() bool { return false }

type mockConductor struct {
	rx  chan Cmd
	err error
}

func (c *mockConductor) ProcessCommand(cmd Cmd) error {
	c.rx <- cmd
	return c.err
}

func TestConductor(t *testing.T) {
	Convey("Given a conductor", t, func() {
		turret := &mockTurret{state: hardware.TurretState{Pan: 100, Tilt: 80}}
		conductor := NewConductor(turret, zerolog.Nop())

		Convey("aim moves one axis and keeps the other", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "aim", Name: "pan", Value: 120}), ShouldBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "aim", Name: "tilt", Value: 30.7}), ShouldBeNil)
			So(turret.aims, ShouldResemble, [][2]int{{120, 80}, {100, 30}})
		})

		Convey("fire modes map onto requests", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "fire", Name: "rev"}), ShouldBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "fire", Name: "fire"}), ShouldBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "fire", Name: "off"}), ShouldBeNil)
			So(turret.fires, ShouldResemble, []hardware.FireRequest{{Rev: true}, {Rev: true, Fire: true}, {}})
		})

		Convey("resync is passed through", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "resync"}), ShouldBeNil)
			So(turret.resyncs, ShouldEqual, 1)
		})

		Convey("turret errors are returned", func() {
			turret.err = errors.New("nope")
			So(conductor.ProcessCommand(Cmd{Cmd: "resync"}), ShouldEqual, turret.err)
		})

		Convey("unknown commands are refused", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "dance"}), ShouldNotBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "aim", Name: "roll"}), ShouldNotBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "fire", Name: "twice"}), ShouldNotBeNil)
			So(turret.aims, ShouldBeEmpty)
			So(turret.fires, ShouldBeEmpty)
		})
	})
}

func TestAnnouncer(t *testing.T) {
	Convey("Given an announcer", t, func() {
		clock := hardware.NewManualClock(epoch)
		var said []string
		announcer := NewAnnouncer(clock, SEARCH_INTERVAL, func(phrase string, at time.Time) {
			said = append(said, phrase)
		})

		Convey("searching starts straight away and repeats every interval", func() {
			announcer.Tick()
			So(said, ShouldResemble, []string{PHRASE_SEARCH})

			clock.Advance(4 * time.Second)
			announcer.Tick()
			So(said, ShouldHaveLength, 1)

			clock.Advance(time.Second)
			announcer.Tick()
			So(said, ShouldResemble, []string{PHRASE_SEARCH, PHRASE_SEARCH})
		})

		Convey("a target is announced and silences searching", func() {
			announcer.PresenceChanged(true, clock.Now())
			clock.Advance(time.Minute)
			announcer.Tick()
			So(said, ShouldResemble, []string{PHRASE_ACTIVE})

			Convey("losing it waits out the interval from the last phrase", func() {
				announcer.PresenceChanged(false, clock.Now())
				announcer.Tick()
				So(said, ShouldResemble, []string{PHRASE_ACTIVE, PHRASE_SEARCH})
			})
		})
	})
}

func dialHub(server *httptest.Server) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func waitForClients(hub *Hub, n int) bool {
	for i := 0; i < 100; i++ {
		if hub.ClientCount() == n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func readMessage(conn *websocket.Conn) (msg Message, err error) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	err = json.Unmarshal(raw, &msg)
	return
}

func TestHub(t *testing.T) {
	Convey("Given a hub with a connected client", t, func() {
		conductor := &mockConductor{rx: make(chan Cmd, 1)}
		hub := NewHub(conductor, hardware.NewManualClock(epoch), zerolog.Nop())
		server := httptest.NewServer(hub)
		defer server.Close()

		conn, err := dialHub(server)
		So(err, ShouldBeNil)
		defer conn.Close()
		So(waitForClients(hub, 1), ShouldBeTrue)

		Convey("state changes are pushed", func() {
			hub.StateChanged(hardware.TurretState{Pan: 42, Tilt: 24, Rev: true})

			msg, err := readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_STATE)
			So(msg.State.Pan, ShouldEqual, 42)
			So(msg.State.Rev, ShouldBeTrue)
		})

		Convey("presence edges are pushed with an announcement", func() {
			hub.PresenceChanged(true, epoch)

			msg, err := readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_PRESENCE)
			So(*msg.Present, ShouldBeTrue)

			msg, err = readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_ANNOUNCE)
			So(msg.Phrase, ShouldEqual, PHRASE_ACTIVE)
		})

		Convey("commands reach the conductor", func() {
			So(conn.WriteJSON(Cmd{Cmd: "aim", Name: "pan", Value: 10}), ShouldBeNil)

			select {
			case cmd := <-conductor.rx:
				So(cmd, ShouldResemble, Cmd{Cmd: "aim", Name: "pan", Value: 10})
			case <-time.After(2 * time.Second):
				So("timeout", ShouldBeNil)
			}
		})

		Convey("refused commands are reported back", func() {
			conductor.err = errors.New("reload in progress")
			So(conn.WriteJSON(Cmd{Cmd: "aim", Name: "pan", Value: 10}), ShouldBeNil)
			<-conductor.rx

			msg, err := readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_ERROR)
			So(msg.Error, ShouldEqual, "reload in progress")
		})

		Convey("invalid json is reported back", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte("{nope")), ShouldBeNil)

			msg, err := readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_ERROR)
		})

		Convey("closed clients are forgotten", func() {
			conn.Close()
			So(waitForClients(hub, 0), ShouldBeTrue)
		})
	})

	Convey("Given a hub with an observer connected", t, func() {
		conductor := &mockConductor{rx: make(chan Cmd, 1)}
		hub := NewHub(conductor, hardware.NewManualClock(epoch), zerolog.Nop())
		server := httptest.NewServer(http.HandlerFunc(hub.ServeObserver))
		defer server.Close()

		conn, err := dialHub(server)
		So(err, ShouldBeNil)
		defer conn.Close()
		So(waitForClients(hub, 1), ShouldBeTrue)

		Convey("events are still pushed", func() {
			hub.StateChanged(hardware.TurretState{Pan: 42})

			msg, err := readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_STATE)
		})

		Convey("commands never reach the conductor", func() {
			So(conn.WriteJSON(Cmd{Cmd: "fire", Name: "fire"}), ShouldBeNil)

			msg, err := readMessage(conn)
			So(err, ShouldBeNil)
			So(msg.Type, ShouldEqual, MSG_ERROR)
			So(msg.Error, ShouldEqual, ErrReadOnly.Error())
			So(conductor.rx, ShouldBeEmpty)
		})
	})

	Convey("Run ticks the announcer until cancelled", t, func() {
		hub := NewHub(nil, hardware.NewManualClock(epoch), zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			hub.Run(ctx, time.Millisecond)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			So("timeout", ShouldBeNil)
		}
	})
}
