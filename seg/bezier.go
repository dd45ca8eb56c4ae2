// Package seg implements the runtime segment executor (spec.md §4.8): it
// consumes the ramps the planner's zoid solver produced and, section by
// section, advances velocity via quintic-Bezier forward differencing,
// calls the kinematics transform, and hands per-motor step deltas to the
// DDA prep buffer.
package seg

// BezierFD holds the five forward-difference coefficients for a quintic
// Bernstein velocity curve whose endpoint tangents and curvatures are
// pinned to zero (spec.md §4.8.2): this reduces the general quintic to
// three coefficients (A, B, C here), and precomputing their per-segment
// increments means each Advance() call is five additions, no multiplies
// and no sqrt. Grounded verbatim on plan_exec.cpp's _init_forward_diffs().
type BezierFD struct {
	f5, f4, f3, f2, f1 float64

	// Velocity is the current segment's instantaneous velocity (mr->
	// segment_velocity); Target is the velocity Advance will reach at the
	// end of the segment just computed (mr->target_velocity).
	Velocity float64
	Target   float64
}

// NewBezierFD seeds the forward-difference coefficients for a section that
// runs from v0 to v1 over the given number of equal-duration segments.
// segments must be >= 2; a one-segment section does not need forward
// differencing at all (the caller should set Velocity/Target directly, as
// plan_exec.cpp's _exec_aline_head/_tail do for mr->segment_count == 1).
func NewBezierFD(v0, v1 float64, segments float64) *BezierFD {
	a := -6.0*v0 + 6.0*v1
	b := 15.0*v0 - 15.0*v1
	c := -10.0*v0 + 10.0*v1

	h := 1.0 / segments
	h2 := h * h
	h3 := h2 * h
	h4 := h3 * h
	h5 := h4 * h

	ah5 := a * h5
	bh4 := b * h4
	ch3 := c * h3

	fd := &BezierFD{
		f5: ah5 + bh4 + ch3,
		f4: 30.0*ah5 + 14.0*bh4 + 6.0*ch3,
		f3: 150.0*ah5 + 36.0*bh4 + 6.0*ch3,
		f2: 240.0*ah5 + 24.0*bh4,
		f1: 120.0 * ah5,
	}
	fd.Velocity = v0
	fd.Target = v0 + fd.f5
	return fd
}

// Advance moves the curve forward one segment: the current segment's
// starting velocity becomes what was Target, a new Target is computed, and
// the forward-difference ladder is updated for the segment after this one.
// Mirrors the "else" branch shared by _exec_aline_head/_exec_aline_tail.
func (fd *BezierFD) Advance() {
	fd.Velocity = fd.Target
	fd.Target += fd.f5
	fd.f5 += fd.f4
	fd.f4 += fd.f3
	fd.f3 += fd.f2
	fd.f2 += fd.f1
}
