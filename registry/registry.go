// Package registry is a staged driver registry, adapted from the teacher's
// root-level periph.go/periph_parallel.go. Where that registry ordered
// chip/bus host drivers by hardware prerequisite (I2C before a device
// sitting on it, etc.), this one orders two different kinds of plugins this
// firmware core needs loaded in dependency order at startup:
//
//   - transport channels (serial, websocket, diagnostic HTTP) that the
//     dispatcher's lineio.Mux reads frames from;
//   - kinematics plugins (devices/kinematics) that translate Cartesian
//     targets into per-motor step ratios, which may themselves depend on a
//     calibration channel having loaded first.
//
// The registration and staged-concurrent-Init algorithm is unchanged from
// the teacher; only the Driver vocabulary and doc comments are retargeted.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Driver is a pluggable component registered at package init() time and
// brought up by Init() in dependency order.
type Driver interface {
	// String returns the driver's unique name, as used in Prerequisites()
	// and in status/failure reporting.
	String() string
	// Prerequisites returns the names of drivers that must have loaded
	// successfully before this one's Init() is called.
	Prerequisites() []string
	// Init initializes the driver.
	//
	// On success returns true, nil. When irrelevant on this build (e.g. a
	// transport compiled in but not configured) returns false, non-nil.
	// On failure returns true, non-nil with a reason.
	Init() (bool, error)
}

// Failure pairs a driver with why it didn't load.
type Failure struct {
	D   Driver
	Err error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.D, f.Err)
}

// State is the outcome of Init(), each list sorted by driver name.
type State struct {
	Loaded  []Driver
	Skipped []Failure
	Failed  []Failure
}

var (
	mu         sync.Mutex
	allDrivers []Driver
	byName     = map[string]Driver{}
	state      *State
)

// Register registers d to be initialized by the next Init() call.
//
// It is an error to call Register after Init has run, and an error to
// register two drivers with the same String().
func Register(d Driver) error {
	mu.Lock()
	defer mu.Unlock()
	if state != nil {
		return errors.New("registry: can't call Register() after Init()")
	}
	n := d.String()
	if _, ok := byName[n]; ok {
		return fmt.Errorf("registry: driver with same name %q was already registered", n)
	}
	byName[n] = d
	allDrivers = append(allDrivers, d)
	return nil
}

// MustRegister calls Register and panics on failure. Call this from a
// plugin package's init().
func MustRegister(d Driver) {
	if err := Register(d); err != nil {
		panic(err)
	}
}

// Init brings up every registered driver, staged by Prerequisites() and
// loaded concurrently within each stage. It is idempotent: a second call
// returns the state computed by the first.
func Init() (*State, error) {
	mu.Lock()
	defer mu.Unlock()
	if state != nil {
		return state, nil
	}
	state = &State{}
	cD := make(chan Driver)
	cS := make(chan Failure)
	cE := make(chan Failure)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for d := range cD {
			state.Loaded = append(state.Loaded, d)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range cS {
			state.Skipped = append(state.Skipped, f)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range cE {
			state.Failed = append(state.Failed, f)
		}
	}()

	stages, err := explodeStages(allDrivers)
	if err != nil {
		return state, err
	}
	loaded := map[string]struct{}{}
	for _, drvs := range stages {
		loadStage(drvs, loaded, cD, cS, cE)
	}
	close(cD)
	close(cS)
	close(cE)
	wg.Wait()

	d := byDriverName(state.Loaded)
	sort.Sort(d)
	state.Loaded = d
	sk := byFailureName(state.Skipped)
	sort.Sort(sk)
	state.Skipped = sk
	fl := byFailureName(state.Failed)
	sort.Sort(fl)
	state.Failed = fl
	return state, nil
}

// explodeStages groups drvs into dependency-ordered stages: stage N+1 may
// assume every driver in stages 0..N either loaded or was definitively
// skipped/failed.
func explodeStages(drvs []Driver) ([][]Driver, error) {
	dependencies := map[string]map[string]struct{}{}
	for _, d := range drvs {
		dependencies[d.String()] = map[string]struct{}{}
	}
	for _, d := range drvs {
		name := d.String()
		for _, depName := range d.Prerequisites() {
			if _, ok := byName[depName]; !ok {
				return nil, fmt.Errorf("registry: unsatisfied dependency %q->%q; it is missing", name, depName)
			}
			dependencies[name][depName] = struct{}{}
		}
	}

	var stages [][]Driver
	for len(dependencies) != 0 {
		var stage []string
		var l []Driver
		for name, deps := range dependencies {
			if len(deps) == 0 {
				stage = append(stage, name)
				l = append(l, byName[name])
				delete(dependencies, name)
			}
		}
		if len(stage) == 0 {
			return nil, fmt.Errorf("registry: found cycle(s) in driver dependencies; %v", dependencies)
		}
		stages = append(stages, l)
		for _, passed := range stage {
			for name := range dependencies {
				delete(dependencies[name], passed)
			}
		}
	}
	return stages, nil
}

// loadStage loads every driver in drvs concurrently; a driver whose
// prerequisite isn't in loaded is skipped rather than attempted.
func loadStage(drvs []Driver, loaded map[string]struct{}, cD chan<- Driver, cS, cE chan<- Failure) {
	var wg sync.WaitGroup
	skip := make([]error, len(drvs))
	for i, d := range drvs {
		for _, dep := range d.Prerequisites() {
			if _, ok := loaded[dep]; !ok {
				skip[i] = fmt.Errorf("dependency not loaded: %q", dep)
				break
			}
		}
	}

	for i, drv := range drvs {
		if err := skip[i]; err != nil {
			cS <- Failure{drv, err}
			continue
		}
		wg.Add(1)
		go func(d Driver, j int) {
			defer wg.Done()
			ok, err := d.Init()
			if ok && err == nil {
				cD <- d
				return
			}
			if ok {
				cE <- Failure{d, err}
			} else {
				cS <- Failure{d, err}
			}
			skip[j] = errors.New("not loaded")
		}(drv, i)
	}
	wg.Wait()

	for i, d := range drvs {
		if skip[i] == nil {
			loaded[d.String()] = struct{}{}
		}
	}
}

// Reset clears all registered drivers and any computed state. It exists for
// tests that need a clean registry between cases; production code never
// calls it.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	allDrivers = nil
	byName = map[string]Driver{}
	state = nil
}

type byDriverName []Driver

func (d byDriverName) Len() int           { return len(d) }
func (d byDriverName) Less(i, j int) bool { return d[i].String() < d[j].String() }
func (d byDriverName) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

type byFailureName []Failure

func (f byFailureName) Len() int           { return len(f) }
func (f byFailureName) Less(i, j int) bool { return f[i].D.String() < f[j].D.String() }
func (f byFailureName) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
