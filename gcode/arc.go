package gcode

import (
	"errors"
	"math"

	"github.com/pathwright/motioncore/motion"
)

// Arc tuning constants, grounded on g2core's plan_arc.h (MIN_ARC_RADIUS,
// MIN_ARC_SEGMENT_LENGTH, MIN_ARC_SEGMENT_USEC, ARC_RADIUS_ERROR_MAX,
// ARC_RADIUS_TOLERANCE). plan_arc.cpp itself was not present in the
// retrieved source, so NewArc's center/segment-count math below is derived
// from spec.md §4.4 and the classic R-word center construction the header's
// linuxcnc.org comment points at, not transcribed from g2core source.
const (
	MinArcRadius         = 0.1
	MinArcSegmentLength  = 0.05
	MinArcSegmentUsec    = 10000.0
	ArcRadiusErrorMax    = 1.0
	ArcRadiusTolerance   = 0.001
	defaultChordTolerance = 0.01
)

// ErrArcRadiusOutOfTolerance is returned when the distance from the
// computed center to the end point disagrees with the start-point radius
// by more than ArcRadiusErrorMax (an absolute distance in mm), per the G2/G3 radius checks
// linked from plan_arc.h.
var ErrArcRadiusOutOfTolerance = errors.New("gcode: arc end point radius mismatch")

// ErrArcRadiusTooSmall is returned for a radius below MinArcRadius.
var ErrArcRadiusTooSmall = errors.New("gcode: arc radius below minimum")

// ErrArcNoCenter is returned when neither an IJK offset nor an R word was
// supplied.
var ErrArcNoCenter = errors.New("gcode: arc has no center (need I/J/K or R)")

// ArcParams are the raw G2/G3 inputs, taken from the words the parser has
// already decoded.
type ArcParams struct {
	GM       motion.GCodeState
	Rotation [3][3]float64
	ZOffset  float64

	Start, Target motion.Vector
	Plane         int // 0=XY (G17), 1=XZ (G18), 2=YZ (G19)

	Offset0, Offset1 float64 // I/J, I/K, or J/K depending on Plane
	HasOffset        bool
	Radius           float64
	HasRadius        bool

	Clockwise  bool // true for G2
	Rotations  float64
	FullCircle bool

	// ChordTolerance is ε_chord (spec.md §4.4); zero selects the 0.01mm
	// default.
	ChordTolerance float64
}

// ArcGenerator decomposes one G2/G3 arc into a restartable sequence of
// ALine calls (spec.md §4.4). A single arc can be thousands of segments;
// Step emits exactly one per call so the dispatcher's arc callback
// (spec.md §4.2) never blows its per-pass latency budget the way computing
// the whole arc up front would.
type ArcGenerator struct {
	canonical Canonical
	gm        motion.GCodeState
	rotation  [3][3]float64
	zOffset   float64

	axis0, axis1, axisLinear int
	center0, center1         float64
	radius                   float64
	theta                    float64
	angularTravel            float64
	linearStart              float64
	linearTravel             float64

	target motion.Vector

	segments     int
	segmentCount int
	segmentTheta float64
	segmentLin   float64
}

// NewArc validates p and builds an ArcGenerator ready for Step, per
// spec.md §4.4: center resolution from I/J/K or R, the absolute
// ArcRadiusErrorMax end-radius check, and the N = ceil(max(length/max_seg_len,
// time/min_seg_time)) segment count.
func NewArc(c Canonical, p ArcParams) (*ArcGenerator, error) {
	a0, a1, aLin := planeAxes(p.Plane)

	s0, s1 := p.Start[a0], p.Start[a1]
	e0, e1 := p.Target[a0], p.Target[a1]

	var center0, center1, radius float64
	switch {
	case p.HasOffset:
		center0 = s0 + p.Offset0
		center1 = s1 + p.Offset1
		radius = math.Hypot(p.Offset0, p.Offset1)
	case p.HasRadius:
		r := p.Radius
		if r < 0 {
			r = -r
		}
		if r < MinArcRadius {
			return nil, ErrArcRadiusTooSmall
		}
		dx, dy := e0-s0, e1-s1
		distSq := dx*dx + dy*dy
		h2 := r*r - distSq/4
		if h2 < 0 {
			h2 = 0 // degenerate: end point essentially diametrically opposed
		}
		h := math.Sqrt(h2)
		mid0, mid1 := (s0+e0)/2, (s1+e1)/2
		dist := math.Sqrt(distSq)
		if dist < 1e-9 {
			return nil, ErrArcNoCenter
		}
		ux, uy := -dy/dist, dx/dist
		sign := 1.0
		if (p.Clockwise && p.Radius > 0) || (!p.Clockwise && p.Radius < 0) {
			sign = -1
		}
		center0 = mid0 + sign*h*ux
		center1 = mid1 + sign*h*uy
		radius = r
	default:
		return nil, ErrArcNoCenter
	}

	if radius < MinArcRadius {
		return nil, ErrArcRadiusTooSmall
	}

	endRadius := math.Hypot(e0-center0, e1-center1)
	if math.Abs(endRadius-radius) > ArcRadiusErrorMax {
		return nil, ErrArcRadiusOutOfTolerance
	}

	theta := math.Atan2(s1-center1, s0-center0)
	thetaEnd := math.Atan2(e1-center1, e0-center0)

	var angularTravel float64
	if p.FullCircle {
		angularTravel = 2 * math.Pi * math.Max(p.Rotations, 1)
		if p.Clockwise {
			angularTravel = -angularTravel
		}
	} else {
		delta := thetaEnd - theta
		if p.Clockwise {
			for delta >= 0 {
				delta -= 2 * math.Pi
			}
		} else {
			for delta <= 0 {
				delta += 2 * math.Pi
			}
		}
		angularTravel = delta + p.Rotations*2*math.Pi*sameSign(p.Clockwise)
	}

	linearTravel := p.Target[aLin] - p.Start[aLin]

	chordTol := p.ChordTolerance
	if chordTol <= 0 {
		chordTol = defaultChordTolerance
	}
	arcLength := math.Hypot(angularTravel*radius, linearTravel)
	maxSegLen := math.Max(2*math.Sqrt(radius*chordTol), MinArcSegmentLength)

	feedMMPerSec := math.Max(motion.MM(p.GM.FeedRate), 1e-6)
	arcTime := math.Abs(arcLength) / feedMMPerSec
	minSegTime := MinArcSegmentUsec / 1e6

	bySpace := math.Abs(arcLength) / maxSegLen
	byTime := arcTime / minSegTime
	n := int(math.Ceil(math.Max(bySpace, byTime)))
	if n < 1 {
		n = 1
	}

	return &ArcGenerator{
		canonical:    c,
		gm:           p.GM,
		rotation:     p.Rotation,
		zOffset:      p.ZOffset,
		axis0:        a0,
		axis1:        a1,
		axisLinear:   aLin,
		center0:      center0,
		center1:      center1,
		radius:       radius,
		theta:        theta,
		angularTravel: angularTravel,
		linearStart:  p.Start[aLin],
		linearTravel: linearTravel,
		target:       p.Target,
		segments:     n,
		segmentTheta: angularTravel / float64(n),
		segmentLin:   linearTravel / float64(n),
	}, nil
}

// Step emits one segment as an ALine call against the generator's
// Canonical. Call it repeatedly (e.g. once per dispatcher pass) until it
// returns motion.StatusOK.
func (a *ArcGenerator) Step() (motion.Status, error) {
	if a.segmentCount >= a.segments {
		return motion.StatusOK, nil
	}
	a.segmentCount++

	gm := a.gm
	if a.segmentCount == a.segments {
		gm.Position = a.target
	} else {
		angle := a.theta + a.segmentTheta*float64(a.segmentCount)
		var pos motion.Vector
		pos = a.gm.Position
		pos[a.axis0] = a.center0 + a.radius*math.Cos(angle)
		pos[a.axis1] = a.center1 + a.radius*math.Sin(angle)
		pos[a.axisLinear] = a.linearStart + a.segmentLin*float64(a.segmentCount)
		gm.Position = pos
	}

	if err := a.canonical.ALine(gm, a.rotation, a.zOffset); err != nil {
		if errors.Is(err, motion.ErrMinLengthMove) {
			// Sub-minimum chord: skip it, the next segment still lands on
			// the arc.
			if a.segmentCount == a.segments {
				return motion.StatusOK, nil
			}
			return motion.StatusEAgain, nil
		}
		// The segment didn't make it into the queue (backpressure); back
		// up so the same segment is retried on a later pass instead of
		// silently dropping a chord.
		a.segmentCount--
		return motion.StatusEAgain, err
	}
	if a.segmentCount == a.segments {
		return motion.StatusOK, nil
	}
	return motion.StatusEAgain, nil
}

// Remaining reports how many segments are still unplayed, for queue/status
// reporting (spec.md §4.12 rate-limits queue reports during arc playback).
func (a *ArcGenerator) Remaining() int { return a.segments - a.segmentCount }

func planeAxes(plane int) (axis0, axis1, axisLinear int) {
	switch plane {
	case 1: // G18 XZ
		return 0, 2, 1
	case 2: // G19 YZ
		return 1, 2, 0
	default: // G17 XY
		return 0, 1, 2
	}
}

func sameSign(clockwise bool) float64 {
	if clockwise {
		return -1
	}
	return 1
}
