// Package wschannel exposes a secondary control/data channel over a
// WebSocket connection, using github.com/gorilla/websocket, exercising the
// ordinary (non-UART) side of lineio's role negotiation: the first
// WebSocket client to attach becomes primary; a second one attaches
// muted-as-secondary until the first disconnects (spec.md §4.1).
package wschannel

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pathwright/motioncore/lineio"
)

// Write/read timeouts and message-size cap, sized the way niceyeti-tabular's
// WebSocket server constants are: generous for a local network link, tight
// enough to notice a dead peer well before the planner queue would starve.
const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Channel wraps one accepted WebSocket connection as a lineio.Channel,
// with a read pump feeding the channel's ring buffer and a write pump
// draining an outbound queue onto the socket at a steady ping/pong cadence
// so a half-open connection is detected and detached promptly.
type Channel struct {
	*lineio.Channel

	conn *websocket.Conn
	log  *zap.Logger
	out  chan []byte
	done chan struct{}
}

// Accept upgrades an incoming HTTP request to a WebSocket connection,
// attaches a new Channel to mux with ordinary (non-FlagAlwaysBoth) flags so
// it competes for the primary data role like any other host connection, and
// starts its read/write pumps.
func Accept(mux *lineio.Mux, w http.ResponseWriter, r *http.Request, log *zap.Logger) (*Channel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)

	ch := &Channel{
		Channel: lineio.NewChannel("ws:"+r.RemoteAddr, lineio.FlagNone),
		conn:    conn,
		log:     log,
		out:     make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	mux.Attach(ch.Channel)
	go ch.readPump(mux)
	go ch.writePump()
	return ch, nil
}

// readPump copies each inbound text/binary message into the channel's ring
// buffer, appending a newline so lineio.Scanner's line-terminator framing
// applies uniformly whether a client sends one line per message (the
// common case) or a whole multi-line program in one frame.
func (c *Channel) readPump(mux *lineio.Mux) {
	defer func() {
		mux.Detach(c.Channel)
		c.conn.Close()
		close(c.done)
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Info("transport/wschannel: read pump exiting", zap.Error(err))
			return
		}
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg = append(msg, '\n')
		}
		if _, werr := c.Channel.Write(msg); werr != nil {
			c.log.Warn("transport/wschannel: ring buffer overrun, dropping message", zap.Error(werr))
		}
	}
}

// writePump drains c.out onto the socket, sending a ping at pingPeriod to
// keep an idle connection's liveness current for the read pump's deadline.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send queues a response payload for the write pump. Non-blocking: if the
// outbound queue is full the message is dropped rather than stalling the
// dispatcher, matching spec.md §7's rule that a slow/muted channel must
// never back-pressure motion.
func (c *Channel) Send(p []byte) error {
	select {
	case c.out <- p:
		return nil
	default:
		return errSendQueueFull
	}
}

var errSendQueueFull = sendQueueFullError{}

type sendQueueFullError struct{}

func (sendQueueFullError) Error() string { return "transport/wschannel: send queue full, message dropped" }
