// Package config backs the flat token namespace of spec.md §6: a set of
// short (≤6 char) keys addressable as JSON leaves, read and written through
// github.com/spf13/viper, layered over defaults set at init. Every read
// passes through a unit-mode conversion (values are stored in millimetres;
// a token tagged spatial is presented in inches when "un" selects
// INCHES), matching spec.md §8's round-trip property.
package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// RangeError is returned by Set when a value falls outside a token's
// declared bounds (spec.md §7's "range error": rejected at set time, the
// value is not written).
type RangeError struct {
	Token      string
	Value      float64
	Min, Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("config: %s=%g out of range [%g,%g]", e.Token, e.Value, e.Min, e.Max)
}

// ErrUnknownToken is returned by Get/Set for a token that was never
// registered via RegisterToken.
var ErrUnknownToken = fmt.Errorf("config: unknown token")

const mmPerInch = 25.4

// spec describes one registered token: its bounds and whether its value
// scales linearly with the active unit mode (spatial: length, velocity, or
// jerk, all of which carry exactly one length dimension and so share the
// same mm<->inch factor regardless of their time dimension).
type spec struct {
	min, max float64
	spatial  bool
}

// Config is the flat namespace. One Config is shared by the parser (for
// work-offset/rotation derived tokens), the planner (axis limits), the
// segment executor (following-error gain), and the report/CLI surfaces
// (read/write of any token by name).
type Config struct {
	mu    sync.RWMutex
	v     *viper.Viper
	specs map[string]spec
}

// New returns a Config with every axis/motor/io/build token registered and
// defaulted, ready for immediate use without a config file on disk (spec.md
// §1 places persistence to non-volatile storage out of scope: Config is
// purely an in-memory runtime namespace).
func New() *Config {
	c := &Config{v: viper.New(), specs: map[string]spec{}}
	c.registerDefaults()
	return c
}

// RegisterToken declares a token's bounds and unit behavior and seeds its
// default value. Called from registerDefaults and from any plugin
// (kinematics, transport) that needs to extend the namespace.
func (c *Config) RegisterToken(token string, def, min, max float64, spatial bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[token] = spec{min: min, max: max, spatial: spatial}
	c.v.SetDefault(token, def)
}

// GetFloat returns token's value converted into the currently active unit
// mode (spec.md §8's round-trip property: a spatial token stored in mm
// reads back in inches when "un" is set).
func (c *Config) GetFloat(token string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sp, ok := c.specs[token]
	if !ok {
		return 0, ErrUnknownToken
	}
	raw := c.v.GetFloat64(token)
	if sp.spatial && c.inchModeLocked() {
		return raw / mmPerInch, nil
	}
	return raw, nil
}

// SetFloat validates value against token's bounds (after converting it into
// the mm-domain the namespace stores internally) and writes it. Rejected
// writes leave the previous value untouched (spec.md §7).
func (c *Config) SetFloat(token string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, ok := c.specs[token]
	if !ok {
		return ErrUnknownToken
	}
	stored := value
	if sp.spatial && c.inchModeLocked() {
		stored = value * mmPerInch
	}
	if stored < sp.min || stored > sp.max {
		return &RangeError{Token: token, Value: value, Min: sp.min, Max: sp.max}
	}
	c.v.Set(token, stored)
	return nil
}

// GetRawMM returns token's value in the internal mm-domain representation,
// bypassing unit-mode conversion. Used by the planner, executor, and
// kinematics plugins, which all work in millimetres regardless of what the
// host currently displays.
func (c *Config) GetRawMM(token string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetFloat64(token)
}

// InchMode reports whether "un" is currently INCHES (1) vs MILLIMETRES
// (0), matching g2core's cm.units_mode token.
func (c *Config) InchMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inchModeLocked()
}

func (c *Config) inchModeLocked() bool {
	return c.v.GetFloat64("un") >= 1
}

// SetInchMode sets "un" directly, bypassing the bounds/spatial machinery
// since it is itself the switch those checks consult.
func (c *Config) SetInchMode(inch bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inch {
		c.v.Set("un", 1.0)
	} else {
		c.v.Set("un", 0.0)
	}
}

// axisLetters is the fixed six-axis order spec.md §3/§6 assumes throughout
// (motion.Axes).
var axisLetters = [6]string{"x", "y", "z", "a", "b", "c"}

// registerDefaults installs the axis/motor/build-constant tokens a fresh
// machine boots with. Values are nominal defaults for a small benchtop
// machine; a real deployment overwrites them via the wire's $token=value
// surface (spec.md §6).
func (c *Config) registerDefaults() {
	for _, ax := range axisLetters {
		c.RegisterToken(ax+"vm", 500, 0, 100000, true)   // velocity max, mm/s
		c.RegisterToken(ax+"tm", 800, 0, 100000, true)   // traverse max, mm/s
		c.RegisterToken(ax+"jm", 50_000_000, 0, 1e12, true) // jerk max, mm/s^3
		c.RegisterToken(ax+"ja", 200_000, 0, 1e9, false) // max junction accel
		c.RegisterToken(ax+"sa", 80, 0.001, 1e9, false)  // steps per mm/deg
	}

	c.RegisterToken("un", 0, 0, 1, false) // units: 0=mm, 1=inch

	// Build-time constants, queryable per spec.md §6's wire surface.
	c.RegisterToken("fv", 1.0, 0, 1e9, false)
	c.RegisterToken("fb", 1.0, 0, 1e9, false)
	c.RegisterToken("fbs", 48, 1, 1024, false)
	c.RegisterToken("hp", 1.0, 0, 1e9, false)
	c.RegisterToken("hv", 1.0, 0, 1e9, false)
	c.RegisterToken("id", 0.0, 0, 1e9, false)

	// Segment executor's step-correction gain/clamp (spec.md §4.8.1),
	// zero by default per §1's closed-loop non-goal.
	c.RegisterToken("fec", 0, 0, 1, false)
	c.RegisterToken("fem", 0, 0, 1e6, false)
}

// AxisLimits reads out the per-axis velocity/jerk table the planner
// consults on every ALine ingest (planner.AxisLimits's field shape, without
// importing package planner here to keep config dependency-free of the
// trajectory math it merely configures).
type AxisLimits struct {
	VelocityMax      float64
	TraverseMax      float64
	JerkMax          float64
	MaxJunctionAccel float64
}

// AllAxisLimits returns the six-entry axis table in the order motion.Axes
// defines (X Y Z A B C), reading the mm-domain values the planner's math
// expects.
func (c *Config) AllAxisLimits() [6]AxisLimits {
	var out [6]AxisLimits
	for i, ax := range axisLetters {
		out[i] = AxisLimits{
			VelocityMax:      c.GetRawMM(ax + "vm"),
			TraverseMax:      c.GetRawMM(ax + "tm"),
			JerkMax:          c.GetRawMM(ax + "jm"),
			MaxJunctionAccel: c.GetRawMM(ax + "ja"),
		}
	}
	return out
}

// FollowingErrorGain/FollowingErrorMaxSteps surface "fec"/"fem" in the
// shape seg.Config expects.
func (c *Config) FollowingErrorGain() float64      { return c.GetRawMM("fec") }
func (c *Config) FollowingErrorMaxSteps() int32     { return int32(c.GetRawMM("fem")) }
