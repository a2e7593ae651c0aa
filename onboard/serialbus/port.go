package serialbus

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	DEFAULT_BAUD         = 9600
	DEFAULT_READ_TIMEOUT = time.Second
)

// PortOptions describes the link parameters used when opening a real serial port.
type PortOptions struct {
	BaudRate    int           `yaml:"baud"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	Parity      string        `yaml:"parity"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Normalize validates the options and fills in defaults (9600 8N1, 1s read timeout).
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DEFAULT_BAUD
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DEFAULT_READ_TIMEOUT
	}

	return opts, nil
}

// SerialMode converts the options into the go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// Open opens the named port (e.g. /dev/ttyACM0 or COM4) and applies the read timeout.
func Open(name string, opts PortOptions) (port serial.Port, err error) {
	opts, err = opts.Normalize()
	if err != nil {
		return
	}

	mode, err := opts.SerialMode()
	if err != nil {
		return
	}

	port, err = serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}

	if err = port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	return port, nil
}

// ListPorts returns the serial ports visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// ReadLine reads a single newline terminated reply from the controller board. Reads
// that return no data (a timeout on a real port) end the line early; the core never
// expects replies, this exists for manual diagnostics only.
func ReadLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)

	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return strings.TrimSpace(sb.String()), nil
			}
			sb.WriteByte(buf[0])
		}
		if err == io.EOF || (err == nil && n == 0) {
			return strings.TrimSpace(sb.String()), nil
		}
		if err != nil {
			return strings.TrimSpace(sb.String()), err
		}
	}
}

// Drain discards whatever the board has already sent, so the next ReadLine sees the
// reply to the next frame rather than a stale one. It stops at the first read that
// returns no data.
func Drain(r io.Reader) (discarded int, err error) {
	buf := make([]byte, 64)

	for {
		var n int
		n, err = r.Read(buf)
		discarded += n
		if err == io.EOF || (err == nil && n == 0) {
			return discarded, nil
		}
		if err != nil {
			return discarded, err
		}
	}
}
