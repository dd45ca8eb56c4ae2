// Command motionctld is the firmware core's process entry point: it
// constructs the logger, configuration namespace, transport channels,
// planner queue, segment executor, DDA engine, and dispatcher loop
// described across SPEC_FULL.md, wires them together, and runs the
// dispatch loop until terminated.
//
// Collapsed to one binary because spec.md describes a single firmware
// image, not a family of host tools the way the teacher's cmd/ directory
// was laid out one binary per peripheral demo.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/pathwright/motioncore/config"
	"github.com/pathwright/motioncore/conn/gpio"
	"github.com/pathwright/motioncore/conn/gpio/gpiotest"
	"github.com/pathwright/motioncore/cycle"
	"github.com/pathwright/motioncore/dda"
	"github.com/pathwright/motioncore/devices/encoder"
	"github.com/pathwright/motioncore/devices/kinematics"
	"github.com/pathwright/motioncore/dispatch"
	"github.com/pathwright/motioncore/gcode"
	"github.com/pathwright/motioncore/lineio"
	"github.com/pathwright/motioncore/motion"
	"github.com/pathwright/motioncore/planner"
	"github.com/pathwright/motioncore/registry"
	"github.com/pathwright/motioncore/report"
	"github.com/pathwright/motioncore/seg"
	"github.com/pathwright/motioncore/transport/diag"
	"github.com/pathwright/motioncore/transport/serial"
)

func main() {
	uartDev := flag.String("uart", "", "serial device path for the always-on UART channel (e.g. /dev/ttyACM0); empty disables it")
	uartBaud := flag.Int("baud", 115200, "UART baud rate")
	diagAddr := flag.String("diag-addr", "", "address to serve the read-only diagnostic HTTP surface on (e.g. :8420); empty disables it")
	queueSize := flag.Int("queue-size", 48, "planner queue ring size")
	motors := flag.Int("motors", 3, "number of physical motors the DDA engine drives")
	ddaHz := flag.Int("dda-hz", 50000, "DDA step-pulse tick rate in Hz")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.New()

	mux := lineio.NewMux()
	if err := serial.Register(mux, *uartDev, *uartBaud, log); err != nil {
		log.Fatal("registering serial transport", zap.Error(err))
	}
	state, err := registry.Init()
	if err != nil {
		log.Fatal("transport registry init", zap.Error(err))
	}
	for _, f := range state.Skipped {
		log.Info("transport skipped", zap.String("driver", f.D.String()), zap.Error(f.Err))
	}
	for _, f := range state.Failed {
		log.Error("transport failed", zap.String("driver", f.D.String()), zap.Error(f.Err))
	}

	q := planner.NewQueue(*queueSize)
	lim := cfg.AllAxisLimits()
	for axis := range q.Axes {
		q.Axes[axis] = planner.AxisLimits{
			VelocityMax:      lim[axis].VelocityMax,
			TraverseMax:      lim[axis].TraverseMax,
			JerkMax:          lim[axis].JerkMax,
			MaxJunctionAccel: lim[axis].MaxJunctionAccel,
		}
	}

	engine := newEngine(*motors)

	xform := kinematics.Cartesian{StepsPerUnit: defaultStepsPerUnit()}
	enc := encoder.Static{}

	executor := seg.NewExecutor(q, engine, xform, enc, seg.Config{
		DDAFrequencyHz:         float64(*ddaHz),
		FollowingErrorGain:     cfg.FollowingErrorGain(),
		FollowingErrorMaxSteps: cfg.FollowingErrorMaxSteps(),
	})

	parser := gcode.NewParser(q)

	feedhold := cycle.NewFeedhold(q, executor)
	flush := cycle.NewFlush(q, feedhold)
	flush.Executor = executor
	jog := cycle.NewJog(q)
	deferred := cycle.NewDeferredCommands(q)

	rep := report.New(q, 1)
	q.SetQueueReportHook(rep.NoteQueueDelta)

	d := dispatch.New(mux, q, executor, engine, parser, feedhold, flush, nil, jog, nil, deferred, rep, cfg, log, *queueSize)

	var diagServer *http.Server
	if *diagAddr != "" {
		diagServer = &http.Server{Addr: *diagAddr, Handler: diag.NewServer(d, mux)}
		go func() {
			if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("diagnostic server exited", zap.Error(err))
			}
		}()
		log.Info("diagnostic surface listening", zap.String("addr", *diagAddr))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// The DDA timer context: the one real second goroutine next to the
	// dispatch loop, standing in for the hardware timer ISR of spec.md
	// §4.9. Everything it shares with the dispatch side goes through the
	// prep buffer's atomic ownership flip.
	go runDDATicker(ctx, engine, *ddaHz)

	log.Info("motionctld running", zap.Int("queue_size", *queueSize), zap.Int("motors", *motors), zap.Int("dda_hz", *ddaHz))
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("dispatch loop exited", zap.Error(err))
	}
	if diagServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		diagServer.Shutdown(shutdownCtx)
	}
}

// runDDATicker drives Engine.Tick at the configured step-pulse rate until
// ctx is canceled. A time.Ticker cannot hold a hard sub-millisecond period
// on a hosted OS, so each wake runs however many ticks the wall clock says
// have elapsed since the last one, keeping the average rate honest even
// when the scheduler wakes the goroutine late.
func runDDATicker(ctx context.Context, engine *dda.Engine, hz int) {
	interval := time.Second / time.Duration(hz)
	if interval <= 0 {
		interval = time.Microsecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := int(now.Sub(last) / interval)
			last = now
			if n < 1 {
				n = 1
			}
			for i := 0; i < n; i++ {
				engine.Tick()
			}
		}
	}
}

// newEngine builds a DDA engine against n motors, using gpiotest's fake
// pins since this build carries no concrete board driver (spec.md's
// Non-goals place low-level host/chip drivers out of scope; a real
// deployment substitutes pins obtained from a registered host package).
func newEngine(n int) *dda.Engine {
	step := make([]gpio.PinOut, n)
	dir := make([]gpio.PinOut, n)
	en := make([]gpio.PinOut, n)
	for i := 0; i < n; i++ {
		step[i] = &gpiotest.Pin{N: "step", Num: i}
		dir[i] = &gpiotest.Pin{N: "dir", Num: i}
		en[i] = &gpiotest.Pin{N: "enable", Num: i}
	}
	return dda.NewEngine(n, step, dir, en)
}

func defaultStepsPerUnit() motion.Vector {
	var v motion.Vector
	for i := range v {
		v[i] = 80
	}
	return v
}
