package motion

// Status is the cooperative-scheduling contract shared by every staged
// callback in the dispatcher pass (spec.md §4.2): the segment executor, the
// arc generator, the cycle state machines, and the dispatcher's own line
// handler all return one of these three values. Named after g2core's
// STAT_OK/STAT_EAGAIN/STAT_NOOP trio; an Eagain from any callback aborts the
// remainder of that pass.
type Status int

const (
	// StatusNoop means there was nothing to do and the caller need not be
	// invoked again until some external state changes.
	StatusNoop Status = iota
	// StatusEAgain means progress is pending; the caller should be invoked
	// again at the next opportunity, before moving on to lower-priority work.
	StatusEAgain
	// StatusOK means the operation in progress completed on this call.
	StatusOK
)

// String implements fmt.Stringer without importing fmt for three cases.
func (s Status) String() string {
	switch s {
	case StatusNoop:
		return "noop"
	case StatusEAgain:
		return "eagain"
	case StatusOK:
		return "ok"
	default:
		return "unknown"
	}
}
