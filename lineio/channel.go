package lineio

// State is a channel's position in the lifecycle spec §4.1 describes:
// disconnected → connected → ready → active(primary|secondary) → muted.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateReady
	StateActive
	StateMuted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateMuted:
		return "muted"
	default:
		return "unknown"
	}
}

// Flags tag a channel's role-negotiation behavior at attach time.
type Flags int

const (
	// FlagNone is an ordinary channel: it may become primary, and loses
	// the data role (but keeps control) when a newer ordinary channel
	// attaches.
	FlagNone Flags = 0
	// FlagAlwaysBoth marks a channel (UART, in the teacher firmware) that
	// is never promoted to primary and is never muted by role
	// negotiation alone.
	FlagAlwaysBoth Flags = 1 << (iota - 1)
	// FlagMuteAsSecondary marks a channel that, when it is not the sole
	// connected channel, goes silent rather than taking any role: a
	// FlagAlwaysBoth channel with this flag mutes whenever any ordinary
	// channel is connected; an ordinary channel with this flag never
	// displaces the existing primary's data role.
	FlagMuteAsSecondary
)

// Channel is one physical/logical transport endpoint: a Ring/Scanner pair
// plus its role in the Mux's control/data negotiation.
type Channel struct {
	Name  string
	Flags Flags

	Ring    *Ring
	Scanner *Scanner

	State     State
	IsPrimary bool // holds the data role; always false for FlagAlwaysBoth

	// muteNotice holds a pending one-shot mute-state notification: the
	// transport owning this channel emits {"muted":true}/{"muted":false}
	// exactly once per transition, then clears it via TakeMuteNotice.
	muteNotice *bool
}

// TakeMuteNotice returns the pending mute-transition notice, if any, and
// clears it so the notification is one-shot.
func (c *Channel) TakeMuteNotice() (muted, pending bool) {
	if c.muteNotice == nil {
		return false, false
	}
	muted = *c.muteNotice
	c.muteNotice = nil
	return muted, true
}

func (c *Channel) noteMute(muted bool) {
	c.muteNotice = &muted
}

// NewChannel creates a Channel with its own backing Ring/Scanner.
func NewChannel(name string, flags Flags) *Channel {
	r := NewRing(DefaultBufferSize)
	return &Channel{
		Name:    name,
		Flags:   flags,
		Ring:    r,
		Scanner: NewScanner(r),
		State:   StateDisconnected,
	}
}

// Write feeds bytes received from the underlying transport into the
// channel's ring buffer.
func (c *Channel) Write(p []byte) (int, error) {
	return c.Ring.Write(p)
}

// CanRead reports whether the dispatcher should attempt ReadLine on this
// channel at all: a disconnected channel never has fresh bytes worth
// scanning, but a muted channel still accepts and must process input (only
// its responses are suppressed — spec §7).
func (c *Channel) CanRead() bool {
	return c.State != StateDisconnected
}
