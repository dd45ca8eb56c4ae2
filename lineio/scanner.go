package lineio

// Kind classifies a recognized line per spec §4.1: a line beginning with
// '{' is JSON control, everything else is a G-code data line.
type Kind int

const (
	KindData Kind = iota
	KindControl
)

func (k Kind) String() string {
	if k == KindControl {
		return "control"
	}
	return "data"
}

// Limit selects which kinds of lines ReadLine is willing to return. The
// dispatcher always probes every channel with LimitControlOnly first; only
// when nothing is found there, and the caller has spare data-handling
// capacity, does it retry with LimitAny (spec §4.1 priority policy).
type Limit int

const (
	LimitControlOnly Limit = iota
	LimitAny
)

// Single-char controls recognized only at the start of a line (spec §4.1,
// §6). '%' is additionally gated on a feedhold being active, since it means
// something else (a literal percent sign / program-end marker) otherwise.
const (
	ByteFeedhold  = '!'
	ByteEndHold   = '~'
	ByteFlush     = '%'
	ByteEnquiry   = 0x05 // ENQ
	ByteKillJob   = 0x04 // ^D
	ByteHardReset = 0x18 // ^X
)

func isSingleCharControl(b byte, holdActive bool) bool {
	switch b {
	case ByteFeedhold, ByteEndHold, ByteEnquiry, ByteKillJob, ByteHardReset:
		return true
	case ByteFlush:
		return holdActive
	default:
		return false
	}
}

func isTerminator(b byte) bool {
	return b == '\r' || b == '\n'
}

// Line is one recognized unit of input: either a single control byte or a
// full line's worth of bytes with its terminator already stripped.
type Line struct {
	Kind    Kind
	IsByte  bool // true when this Line is a lone single-char control
	Byte    byte
	Content []byte
}

// SkipRecord marks a span of the ring that was discarded because it
// belonged to a line longer than MaxLineSize. It exists only for
// diagnostics (read back through Scanner.SkipRecords); the scanner itself never
// revisits a span once it has been skipped.
type SkipRecord struct {
	Reason string
	Length int
}

// MaxLineSize bounds a single data/control line, matched to the wire
// protocol's 512-byte JSON cap (spec §6) with slack for G-code line-number
// and checksum framing.
const MaxLineSize = 600

// MaxSkipRecords bounds the pending-skip-record queue. Once it is full,
// further overlong lines are still discarded but no record is kept for
// them; scanning does not stall.
const MaxSkipRecords = 8

// Scanner is the incremental line reader laid over a Ring: it is
// restartable, remembering across calls the byte offset of an in-progress,
// not-yet-terminated line so a line spanning multiple Write calls is not
// mis-split.
type Scanner struct {
	ring *Ring

	// HoldActive must be kept current by the owning Channel/cycle package:
	// it gates whether '%' is treated as queue-flush or passed through as
	// ordinary data-line content.
	HoldActive bool

	skipRecords []SkipRecord
	pendingSkip int // bytes of the in-progress line already marked for skip, 0 if none

	// pendingData holds complete data lines a control-only scan stepped
	// past while hunting for a control line further in (spec §4.1's
	// priority policy: '!'/'~'/'%'/JSON behind bulk G-code must still be
	// seen with at-most one block of latency). They are replayed, in
	// order, ahead of fresh ring content on the next data-eligible read.
	pendingData [][]byte
}

// MaxPendingData bounds how many parked data lines a control-only scan may
// step past before it stalls; the parked lines drain on the next
// data-eligible pass, so the bound is latency, not loss.
const MaxPendingData = 4

// NewScanner wraps ring with a line scanner.
func NewScanner(ring *Ring) *Scanner {
	return &Scanner{ring: ring}
}

// SkipRecords returns and clears the queue of lines discarded for exceeding
// MaxLineSize since the last call.
func (s *Scanner) SkipRecords() []SkipRecord {
	out := s.skipRecords
	s.skipRecords = nil
	return out
}

// ReadLine returns the next recognized Line honoring limit, or ok=false if
// no complete line of an eligible kind is currently buffered. A
// control-only read steps past (and parks) complete data lines so a
// control byte or JSON line buffered behind bulk G-code is still found;
// parked lines are replayed ahead of fresh ring content on the next
// data-eligible read.
func (s *Scanner) ReadLine(limit Limit) (line Line, ok bool) {
	if limit == LimitAny && len(s.pendingData) > 0 {
		content := s.pendingData[0]
		s.pendingData = s.pendingData[1:]
		return Line{Kind: KindData, Content: content}, true
	}

	for {
		if limit == LimitControlOnly && len(s.pendingData) >= MaxPendingData {
			// Park is full; stop scanning ahead until a data pass drains
			// it. Anything further back stays in the ring, unscanned.
			return Line{}, false
		}
		line, ok := s.next()
		if !ok {
			return Line{}, false
		}
		if limit == LimitControlOnly && !line.IsByte && line.Kind == KindData {
			s.pendingData = append(s.pendingData, line.Content)
			continue
		}
		return line, true
	}
}

// next extracts the next complete line or single-char control from the
// ring, regardless of kind, applying the overlong-line skip-record rules.
func (s *Scanner) next() (line Line, ok bool) {
	buf := s.ring.Snapshot()
	if len(buf) == 0 {
		return Line{}, false
	}

	// Single-char controls are recognized only at the very start of the
	// unread region, which is always a line start: any earlier bytes have
	// already been consumed, parked, or queued as a skip record by a
	// previous call.
	if s.pendingSkip == 0 && isSingleCharControl(buf[0], s.HoldActive) {
		s.ring.Consume(1)
		return Line{Kind: KindControl, IsByte: true, Byte: buf[0]}, true
	}

	for {
		// Collapse a leading terminator run (blank lines) and re-check for
		// a single-char control at the fresh line start it exposes.
		if isTerminator(buf[0]) {
			consumed := terminatorRunLength(buf)
			s.ring.Consume(consumed)
			buf = buf[consumed:]
			if len(buf) == 0 {
				return Line{}, false
			}
			if s.pendingSkip == 0 && isSingleCharControl(buf[0], s.HoldActive) {
				s.ring.Consume(1)
				return Line{Kind: KindControl, IsByte: true, Byte: buf[0]}, true
			}
			continue
		}

		term := indexTerminator(buf)
		if term == -1 {
			if len(buf)+s.pendingSkip > MaxLineSize {
				// Already over budget with no terminator in sight: discard
				// what's buffered now so the ring doesn't wedge on a line
				// that never ends, and keep a running total so the
				// eventual skip record reports the true discarded length.
				s.pendingSkip += len(buf)
				s.ring.Consume(len(buf))
			}
			return Line{}, false
		}

		total := s.pendingSkip + term
		if total > MaxLineSize {
			s.recordSkip(total, "line exceeds max size")
			consumed := term + terminatorRunLength(buf[term:])
			s.ring.Consume(consumed)
			s.pendingSkip = 0
			buf = buf[consumed:]
			if len(buf) == 0 {
				return Line{}, false
			}
			continue
		}

		content := buf[:term]
		kind := KindData
		if len(content) > 0 && content[0] == '{' {
			kind = KindControl
		}

		consumed := term + terminatorRunLength(buf[term:])
		s.ring.Consume(consumed)
		s.pendingSkip = 0
		out := make([]byte, len(content))
		copy(out, content)
		return Line{Kind: kind, Content: out}, true
	}
}

func (s *Scanner) recordSkip(totalLength int, reason string) {
	if len(s.skipRecords) >= MaxSkipRecords {
		// Ring of skip records is full: this record is dropped; the
		// caller still discards the overlong line and scanning goes on.
		return
	}
	s.skipRecords = append(s.skipRecords, SkipRecord{Reason: reason, Length: totalLength})
}

func indexTerminator(buf []byte) int {
	for i, b := range buf {
		if isTerminator(b) {
			return i
		}
	}
	return -1
}

// terminatorRunLength returns how many leading bytes of buf are terminator
// characters, so a run of \r\n (or \n\r, or repeated presses) collapses
// into a single line break.
func terminatorRunLength(buf []byte) int {
	n := 0
	for n < len(buf) && isTerminator(buf[n]) {
		n++
	}
	return n
}
