package serialbus

import (
	"io"
	"sync"

	deviceErrors "github.com/CodedInternet/sentrygun/onboard/errors"
	"github.com/rs/zerolog"
)

// FrameSender is anything able to put a frame on the wire.
type FrameSender interface {
	SendFrame(f Frame) error
}

// Channel serializes frames onto a byte oriented link. Writes are synchronous and
// nothing is read back.
type Channel struct {
	link    io.Writer
	lock    *sync.Mutex
	log     zerolog.Logger
	txCount int
}

func NewChannel(link io.Writer, log zerolog.Logger) *Channel {
	return &Channel{
		link: link,
		lock: new(sync.Mutex),
		log:  log.With().Str("component", "channel").Logger(),
	}
}

// SendFrame writes exactly FrameSize bytes. A failed or short write is returned as a
// ChannelError and is never retried here.
func (c *Channel) SendFrame(f Frame) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	n, err := c.link.Write(f.toByteArray())
	if err == nil && n != FrameSize {
		err = io.ErrShortWrite
	}
	if err != nil {
		c.log.Error().Err(err).Uint8("opcode", f.Opcode).Uint8("value", f.Value).Msg("frame write failed")
		return deviceErrors.ChannelError{Opcode: f.Opcode, Value: f.Value, Err: err}
	}

	c.txCount++
	c.log.Debug().Uint8("opcode", f.Opcode).Uint8("value", f.Value).Msg("tx")
	return nil
}

// SendRaw bypasses any opcode checks. Only the dev shell should need this.
func (c *Channel) SendRaw(opcode, value uint8) error {
	return c.SendFrame(Frame{Opcode: opcode, Value: value})
}

// TxCount is the number of frames successfully written.
func (c *Channel) TxCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.txCount
}

// Reader exposes the read side of the link, if it has one.
func (c *Channel) Reader() (io.Reader, bool) {
	r, ok := c.link.(io.Reader)
	return r, ok
}

func (c *Channel) Close() error {
	if closer, ok := c.link.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
