package lineio

import "sync"

// Mux holds every connected Channel and implements the control/data role
// negotiation and cross-channel read priority described in spec §4.1: on
// every dispatcher pass, control lines from any channel preempt data lines
// from the primary channel.
type Mux struct {
	mu       sync.Mutex
	channels []*Channel
}

// NewMux creates an empty channel multiplexer.
func NewMux() *Mux {
	return &Mux{}
}

// Attach connects ch and runs the role-negotiation rules, mutating ch and
// any previously-primary channel in place.
func (m *Mux) Attach(ch *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch.State = StateConnected
	ch.State = StateReady

	if ch.Flags&FlagAlwaysBoth != 0 {
		ch.IsPrimary = false
		ch.State = StateActive
		m.channels = append(m.channels, ch)
		m.refreshMutes()
		return
	}

	if ch.Flags&FlagMuteAsSecondary != 0 {
		ch.IsPrimary = false
		ch.State = StateMuted
		ch.noteMute(true)
		m.channels = append(m.channels, ch)
		m.refreshMutes()
		return
	}

	if prev := m.primaryLocked(); prev != nil {
		prev.IsPrimary = false
	}
	ch.IsPrimary = true
	ch.State = StateActive
	m.channels = append(m.channels, ch)
	m.refreshMutes()
}

// refreshMutes re-evaluates every mute-as-secondary always-both channel
// against the current roster: muted while any ordinary channel is
// connected, active otherwise. Each transition records a one-shot notice
// on the channel (spec §7's {"muted":...} message). Callers must hold m.mu.
func (m *Mux) refreshMutes() {
	ordinary := m.hasOrdinaryChannel()
	for _, c := range m.channels {
		if c.Flags&FlagAlwaysBoth == 0 || c.Flags&FlagMuteAsSecondary == 0 {
			continue
		}
		switch {
		case ordinary && c.State == StateActive:
			c.State = StateMuted
			c.noteMute(true)
		case !ordinary && c.State == StateMuted:
			c.State = StateActive
			c.noteMute(false)
		}
	}
}

// Detach disconnects ch. If it held the data role, the most recently
// attached remaining ordinary channel (if any) is promoted.
func (m *Mux) Detach(ch *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.channels {
		if c == ch {
			m.channels = append(m.channels[:i], m.channels[i+1:]...)
			break
		}
	}
	ch.State = StateDisconnected
	ch.IsPrimary = false
	defer m.refreshMutes()

	if m.primaryLocked() != nil {
		return
	}
	for i := len(m.channels) - 1; i >= 0; i-- {
		c := m.channels[i]
		if c.Flags&FlagAlwaysBoth == 0 && c.State == StateActive {
			c.IsPrimary = true
			return
		}
	}
}

func (m *Mux) hasOrdinaryChannel() bool {
	for _, c := range m.channels {
		if c.Flags&FlagAlwaysBoth == 0 && c.State != StateDisconnected {
			return true
		}
	}
	return false
}

func (m *Mux) primaryLocked() *Channel {
	for _, c := range m.channels {
		if c.IsPrimary {
			return c
		}
	}
	return nil
}

// Channels returns a snapshot of the currently attached channels.
func (m *Mux) Channels() []*Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Channel, len(m.channels))
	copy(out, m.channels)
	return out
}

// ReadLine implements the priority policy of spec §4.1: every channel is
// probed for a control line first; only if none has one, and limit allows
// data, is the primary channel's data line (if any) returned.
//
// The returned Channel is the one the line came from, so the dispatcher
// can route a response (or a mute notice) back to the right transport.
func (m *Mux) ReadLine(limit Limit) (*Channel, Line, bool) {
	for _, c := range m.Channels() {
		if !c.CanRead() {
			continue
		}
		if line, ok := c.Scanner.ReadLine(LimitControlOnly); ok {
			return c, line, true
		}
	}
	if limit != LimitAny {
		return nil, Line{}, false
	}
	for _, c := range m.Channels() {
		if !c.IsPrimary || !c.CanRead() {
			continue
		}
		if line, ok := c.Scanner.ReadLine(LimitAny); ok {
			return c, line, true
		}
	}
	return nil, Line{}, false
}
