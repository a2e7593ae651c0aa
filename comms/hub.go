package comms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	SEND_BUFFER = 64
	WRITE_WAIT  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	readOnly bool
}

var ErrReadOnly = errors.New("this connection may not send commands")

// Hub fans turret events out to every connected websocket and feeds commands read
// from them to the conductor. It is an onboard.Listener.
type Hub struct {
	lock      *sync.Mutex
	clients   map[*client]struct{}
	conductor ConductorInterface
	announcer *Announcer
	log       zerolog.Logger
}

func NewHub(conductor ConductorInterface, clock hardware.Clock, log zerolog.Logger) (h *Hub) {
	h = &Hub{
		lock:      new(sync.Mutex),
		clients:   make(map[*client]struct{}),
		conductor: conductor,
		log:       log.With().Str("component", "hub").Logger(),
	}
	h.announcer = NewAnnouncer(clock, SEARCH_INTERVAL, func(phrase string, at time.Time) {
		h.Broadcast(announceMessage(phrase, at))
	})
	return
}

// ServeHTTP upgrades the request and serves the socket until the client goes away.
// Commands read from the socket are passed to the conductor.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

// ServeObserver serves the event stream but refuses every command.
func (h *Hub) ServeObserver(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, readOnly bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, SEND_BUFFER), readOnly: readOnly}
	h.register(c)
	defer h.unregister(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		var cmd Cmd
		if err = json.Unmarshal(msg, &cmd); err != nil {
			h.sendTo(c, errorMessage(err))
			continue
		}

		if c.readOnly {
			h.log.Info().Str("cmd", cmd.Cmd).Msg("command from observer refused")
			h.sendTo(c, errorMessage(ErrReadOnly))
			continue
		}
		if h.conductor == nil {
			continue
		}
		if err = h.conductor.ProcessCommand(cmd); err != nil {
			h.log.Info().Err(err).Str("cmd", cmd.Cmd).Msg("command refused")
			h.sendTo(c, errorMessage(err))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn().Err(err).Msg("write failed")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) register(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.clients[c] = struct{}{}
	h.log.Info().Int("clients", len(h.clients)).Msg("client connected")
}

func (h *Hub) unregister(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.log.Info().Int("clients", len(h.clients)).Msg("client disconnected")
}

func (h *Hub) ClientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return len(h.clients)
}

// Broadcast queues msg for every client. Clients that cannot keep up lose messages
// rather than stall the control loop.
func (h *Hub) Broadcast(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("unable to marshal message")
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			h.log.Debug().Str("type", msg.Type).Msg("client backlogged, dropping")
		}
	}
}

func (h *Hub) sendTo(c *client, msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (h *Hub) PresenceChanged(present bool, at time.Time) {
	h.Broadcast(presenceMessage(present, at))
	h.announcer.PresenceChanged(present, at)
}

func (h *Hub) StateChanged(state hardware.TurretState) {
	h.Broadcast(stateMessage(state))
}

// Run drives the idle announcements until ctx is done.
func (h *Hub) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.announcer.Tick()
		}
	}
}
