// Package serial wires a physical UART onto the lineio channel state
// machine via github.com/tarm/serial. It is the "always both, never
// primary" channel spec.md §4.1 describes: a direct serial link to the
// controller board is typically the factory/default connection, present
// even when a host has also attached over a secondary transport, so it
// never competes for the primary data role and is never muted.
package serial

import (
	"go.uber.org/zap"

	"github.com/tarm/serial"

	"github.com/pathwright/motioncore/lineio"
	"github.com/pathwright/motioncore/registry"
)

// Channel wraps a github.com/tarm/serial port as a lineio.Channel, with a
// reader goroutine feeding bytes into the channel's ring buffer and a
// Write method that hands response bytes straight to the port.
//
// Flow control at this level is handled by the tarm/serial driver itself;
// Pins names which physical lines a board exposes this channel over, for
// diagnostics only, and leaves the byte-level framing to the platform UART
// peripheral.
type Channel struct {
	*lineio.Channel

	port *serial.Port
	log  *zap.Logger
	done chan struct{}

	// Pins names the RX/TX (and, when the board wires them, RTS/CTS)
	// function assignment this channel occupies, for diagnostics only.
	Pins []string
}

// Open configures and opens dev at baud, and returns a Channel attached to
// mux with lineio.FlagAlwaysBoth, starting the background reader
// immediately.
func Open(mux *lineio.Mux, dev string, baud int, log *zap.Logger) (*Channel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := &serial.Config{Name: dev, Baud: baud}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		Channel: lineio.NewChannel("serial:"+dev, lineio.FlagAlwaysBoth),
		port:    port,
		log:     log,
		done:    make(chan struct{}),
		Pins:    []string{"RX", "TX"},
	}
	mux.Attach(ch.Channel)
	go ch.readLoop()
	return ch, nil
}

// readLoop copies bytes from the serial port into the channel's ring
// buffer until the port is closed. It is the single producer for this
// channel's Ring; lineio.Ring's own mutex makes that safe against the
// dispatcher's concurrent Scanner reads.
func (c *Channel) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			if _, werr := c.Channel.Write(buf[:n]); werr != nil {
				c.log.Warn("transport/serial: ring buffer overrun, dropping bytes", zap.Error(werr))
			}
		}
		if err != nil {
			c.log.Info("transport/serial: read loop exiting", zap.Error(err))
			close(c.done)
			return
		}
	}
}

// Send writes a response payload directly to the serial port.
func (c *Channel) Send(p []byte) error {
	_, err := c.port.Write(p)
	return err
}

// Close closes the underlying port; the reader goroutine exits on its next
// failed Read.
func (c *Channel) Close() error {
	return c.port.Close()
}

// driver adapts Channel's construction into registry.Driver so
// cmd/motionctld can bring every configured transport up through the same
// staged registry the teacher used for host peripheral bring-up.
type driver struct {
	mux  *lineio.Mux
	dev  string
	baud int
	log  *zap.Logger

	opened *Channel
}

func (d *driver) String() string          { return "transport/serial" }
func (d *driver) Prerequisites() []string { return nil }

func (d *driver) Init() (bool, error) {
	if d.dev == "" {
		return false, errNotConfigured
	}
	ch, err := Open(d.mux, d.dev, d.baud, d.log)
	if err != nil {
		return true, err
	}
	d.opened = ch
	return true, nil
}

var errNotConfigured = notConfiguredError{}

type notConfiguredError struct{}

func (notConfiguredError) Error() string { return "transport/serial: no device path configured" }

// Register installs a registry.Driver that opens dev at baud against mux
// when registry.Init runs, skipping cleanly (not failing) when dev is
// empty — the common case on a build with no physical UART wired up.
func Register(mux *lineio.Mux, dev string, baud int, log *zap.Logger) error {
	return registry.Register(&driver{mux: mux, dev: dev, baud: baud, log: log})
}
