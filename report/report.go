// Package report builds the wire-visible JSON response envelopes of
// spec.md §6: status reports (filtered and verbose), queue reports, and
// the per-line ack footer. Responses are assembled as plain Go structs and
// marshaled with encoding/json rather than through jsonrelax, which spec.md
// §6 and DESIGN.md's grounding ledger keep strictly input-only — the wire
// dialect it parses is relaxed on the way in, but this core's own output is
// always well-formed JSON.
package report

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
)

// MinArcQRInterval throttles queue reports emitted while an arc is being
// stepped out segment by segment: without it, a single G2/G3 line could
// flood every attached channel with one queue report per chord segment
// (spec.md §6's "arc generation must not flood the queue report channel").
const MinArcQRInterval = 100 * time.Millisecond

// PhatCityTime is the planner-slack threshold (seconds of buffered motion)
// below which the machine is considered time-tight: with less than this
// queued, automatic status reports start being shed so reporting work
// cannot starve the planner (spec.md §4.12).
const PhatCityTime = 0.030

// statusDropModulus is the shedding rate while time-tight: every Nth
// automatic status report is dropped.
const statusDropModulus = 3

// StatusReport is the filtered ("sr") status report: the small, frequently
// emitted subset of machine state a host polls or subscribes to. Fields use
// `json:",omitempty"` sparingly — per spec.md §6 the *filter* is configured
// separately (Reporter.Filter); omitempty here drops zero-valued axis
// positions (including those a Filtered report zeroed), a zero feed and an
// empty hold state.
type StatusReport struct {
	Line   int32          `json:"line"`
	Stat   motion.StatCode `json:"stat"`
	Posx   float64        `json:"posx,omitempty"`
	Posy   float64        `json:"posy,omitempty"`
	Posz   float64        `json:"posz,omitempty"`
	Posa   float64        `json:"posa,omitempty"`
	Posb   float64        `json:"posb,omitempty"`
	Posc   float64        `json:"posc,omitempty"`
	Vel    float64        `json:"vel"`
	Feed   float64        `json:"feed,omitempty"`
	Unit   int            `json:"unit"`
	Coor   int            `json:"coor"`
	Momo   int            `json:"momo"`
	Plan   int            `json:"plan"`
	Hold   string         `json:"hold,omitempty"`
}

// QueueReport ("qr") reports the planner's free-block count and, optionally,
// the occupied count and the number of blocks committed since the previous
// queue report, which a host uses to tune its own send-ahead window.
type QueueReport struct {
	QR  int `json:"qr"`
	QOO int `json:"qoo,omitempty"` // buffers currently occupied
	QOH int `json:"qoh,omitempty"` // blocks committed since last report
}

// AckFooter is the per-line acknowledgement footer of spec.md §6:
// "f":[revision, statusCode, bytesConsumed] appended to every response to a
// data or control line, so a host can pace its own send-ahead without
// waiting for a queue report.
type AckFooter struct {
	F [3]int `json:"f"`
}

// Envelope is one complete outbound response: an optional status report, an
// optional queue report, and the always-present ack footer, matching the
// combined-object shape g2core's json_parser.cpp assembles per line
// ("body with footer").
type Envelope struct {
	SR  *StatusReport `json:"sr,omitempty"`
	QR  *QueueReport  `json:"qr,omitempty"`
	Prb *ProbeReport  `json:"prb,omitempty"`
	F   [3]int        `json:"f"`
	Er  *ErrorReport  `json:"er,omitempty"`
}

// ErrorReport ("er") is emitted in place of (or alongside) an ack footer
// when an Alarm escalates, per spec.md §7.
type ErrorReport struct {
	ST  string `json:"st"`
	Msg string `json:"msg"`
}

// ProbeReport ("prb") reports the outcome of a probe cycle: e is 1 when
// contact was made, 0 for a clean miss (G38.3), and the axis fields carry
// the contact position resolved through forward kinematics (spec.md §6,
// §4.11).
type ProbeReport struct {
	E int     `json:"e"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	A float64 `json:"a,omitempty"`
	B float64 `json:"b,omitempty"`
	C float64 `json:"c,omitempty"`
}

// BuildProbeReport renders a completed probe cycle's outcome.
func BuildProbeReport(triggered bool, pos motion.Vector) ProbeReport {
	pr := ProbeReport{
		X: pos[0], Y: pos[1], Z: pos[2],
		A: pos[3], B: pos[4], C: pos[5],
	}
	if triggered {
		pr.E = 1
	}
	return pr
}

// Marshal renders env as wire JSON. A reporter-level helper rather than a
// method on Envelope so callers cannot accidentally marshal a zero-value
// Envelope (which would still be valid JSON, just meaningless) without
// routing through Reporter's rate-limit/filter logic first.
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Filter selects which StatusReport fields a verbose vs. filtered report
// includes. Verbose mirrors g2core's SR_VERBOSE (no field is zeroed by the
// filter); Filtered zeroes, and so omits, each axis position that has not
// changed since the last report, while every other field is built the same
// way as in Verbose (spec.md §6's "noise rejection" goal).
type Filter int

const (
	FilterFiltered Filter = iota
	FilterVerbose
)

// Reporter assembles Envelopes from the live planner/runtime state and
// rate-limits queue reports emitted mid-arc. It holds no transport
// reference: dispatch.Dispatcher.BuildReport calls its Build* methods, and
// the caller of BuildReport is responsible for handing the
// result to whichever lineio.Channel originated the request (or broadcasting
// it, for an unsolicited status report).
type Reporter struct {
	mu     sync.Mutex
	Filter Filter

	queue *planner.Queue

	lastQR     time.Time
	queueHigh  int
	prevStatus StatusReport
	revision   int
	tightCount int
}

// AllowAutoStatus reports whether an automatic (unsolicited) status report
// may be emitted now, given the planner's current slack in seconds
// (planner.Queue.PlannableSeconds). Reports requested explicitly by a host
// line are never subject to this throttle — only the timed/auto kind.
func (r *Reporter) AllowAutoStatus(plannableSeconds float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plannableSeconds >= PhatCityTime {
		r.tightCount = 0
		return true
	}
	r.tightCount++
	return r.tightCount%statusDropModulus != 0
}

// New returns a Reporter reading queue depth from q. rev is the protocol
// revision number echoed in every ack footer (spec.md §6).
func New(q *planner.Queue, rev int) *Reporter {
	return &Reporter{queue: q, revision: rev}
}

// NoteQueueDelta is the hook installed via planner.Queue.SetQueueReportHook:
// it counts the blocks committed (positive deltas) since the last queue
// report; the actual occupied count is read fresh from the queue at Build
// time.
func (r *Reporter) NoteQueueDelta(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if delta > 0 {
		r.queueHigh++
	}
}

// QueueOccupied returns the number of blocks currently holding state,
// derived from the queue's Available() against its configured capacity.
func (r *Reporter) QueueOccupied(capacity int) int {
	free := r.queue.Available()
	occ := capacity - free
	if occ < 0 {
		occ = 0
	}
	return occ
}

// BuildQueueReport returns a QueueReport, or ok=false if a queue report was
// already emitted more recently than MinArcQRInterval and suppressNow is
// set (dispatch.Dispatcher.BuildReport passes its arcInFlight argument as
// suppressNow, true only while an arc is mid-step,
// per spec.md §6).
func (r *Reporter) BuildQueueReport(capacity int, suppressNow bool) (QueueReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if suppressNow && time.Since(r.lastQR) < MinArcQRInterval {
		return QueueReport{}, false
	}
	r.lastQR = timeNow()
	occ := r.QueueOccupied(capacity)
	qr := QueueReport{QR: r.queue.Available(), QOO: occ, QOH: r.queueHigh}
	r.queueHigh = 0
	return qr, true
}

// timeNow exists only so a future test can stub wall-clock reads; today it
// just calls time.Now.
func timeNow() time.Time { return time.Now() }

// BuildStatusReport renders rs into the wire shape, honoring r.Filter: a
// Filtered report zeroes (and thus omits, via omitempty) any axis position
// field that has not moved since the previous report.
func (r *Reporter) BuildStatusReport(rs *motion.RuntimeState, stat motion.StatCode, line int32, holdState motion.FeedholdState) StatusReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	sr := StatusReport{
		Line: line,
		Stat: stat,
		Posx: rs.Position[0],
		Posy: rs.Position[1],
		Posz: rs.Position[2],
		Posa: rs.Position[3],
		Posb: rs.Position[4],
		Posc: rs.Position[5],
		Vel:  motion.MM(rs.Velocity),
	}
	if holdState != motion.FeedholdOff {
		sr.Hold = holdState.String()
	}

	if r.Filter == FilterFiltered {
		if sr.Posx == r.prevStatus.Posx {
			sr.Posx = 0
		}
		if sr.Posy == r.prevStatus.Posy {
			sr.Posy = 0
		}
		if sr.Posz == r.prevStatus.Posz {
			sr.Posz = 0
		}
		if sr.Posa == r.prevStatus.Posa {
			sr.Posa = 0
		}
		if sr.Posb == r.prevStatus.Posb {
			sr.Posb = 0
		}
		if sr.Posc == r.prevStatus.Posc {
			sr.Posc = 0
		}
	}
	r.prevStatus = sr
	return sr
}

// BuildAck returns the ack footer for a just-processed line: the protocol
// revision, the resulting stat code rendered as its small integer form
// (matching g2core's footer[1], which is an int not the string StatCode
// marshals to elsewhere), and the number of bytes consumed from the input
// channel.
func (r *Reporter) BuildAck(stat motion.StatCode, bytesConsumed int) [3]int {
	return [3]int{r.revision, int(stat), bytesConsumed}
}

// BuildError renders an Alarm into the er-report shape.
func BuildError(a *motion.Alarm) *ErrorReport {
	return &ErrorReport{ST: a.Level.String(), Msg: a.Reason}
}

// MuteNotice renders the one-shot {"muted":...} notification a transport
// emits when its channel's mute state flips (spec.md §7). Emitted even on
// the muted channel itself — it is the single exception to response
// suppression, so a host knows why it went quiet.
func MuteNotice(muted bool) []byte {
	if muted {
		return []byte(`{"muted":true}` + "\n")
	}
	return []byte(`{"muted":false}` + "\n")
}
