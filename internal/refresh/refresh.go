// Package refresh runs the periodic sample, render and write cycle.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flavioheleno/statpanel/image565"
	"github.com/flavioheleno/statpanel/internal/telemetry"
	"github.com/flavioheleno/statpanel/st7735"
)

// ErrBusExhausted is returned once the bus has failed MaxBusFailures frames
// in a row.
var ErrBusExhausted = errors.New("refresh: display bus failures exhausted")

// Display is the part of the panel driver the scheduler uses.
type Display interface {
	WriteFrame(f *image565.Frame) error
	ResetAndInit() error
	Halt() error
}

// Renderer turns a snapshot into a frame.
type Renderer interface {
	Render(s telemetry.Snapshot) *image565.Frame
}

// State of the scheduler.
type State int32

const (
	Running State = iota
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options for a Scheduler.
type Options struct {
	// Period between the start of two cycles. Defaults to 1s.
	Period time.Duration
	// MaxBusFailures is the number of consecutive failed frames tolerated.
	// Defaults to 5.
	MaxBusFailures int
}

// Scheduler owns the display between Run and its return.
type Scheduler struct {
	opts     Options
	source   telemetry.Source
	renderer Renderer
	display  Display
	logger   *slog.Logger

	state    atomic.Int32
	failures int
	frames   atomic.Uint64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Scheduler in the Running state.
func New(opts Options, source telemetry.Source, renderer Renderer, display Display, logger *slog.Logger) *Scheduler {
	if opts.Period <= 0 {
		opts.Period = time.Second
	}
	if opts.MaxBusFailures <= 0 {
		opts.MaxBusFailures = 5
	}
	return &Scheduler{
		opts:     opts,
		source:   source,
		renderer: renderer,
		display:  display,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// State reports whether the loop is still cycling.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Frames is the number of frames written successfully.
func (s *Scheduler) Frames() uint64 {
	return s.frames.Load()
}

// Run cycles until ctx is cancelled or the display fails unrecoverably. On
// cancellation the panel is halted and Run returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.state.Store(int32(Stopping))

	for {
		if ctx.Err() != nil {
			return s.stop()
		}

		start := s.now()
		if err := s.cycle(ctx); err != nil {
			return err
		}

		wait := s.opts.Period - s.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		if err := s.sleep(ctx, wait); err != nil {
			return s.stop()
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) error {
	snap := s.source.Snapshot(ctx)
	frame := s.renderer.Render(snap)

	err := s.display.WriteFrame(frame)
	if err == nil {
		if s.failures > 0 {
			s.logger.Info("display recovered", "after_failures", s.failures)
		}
		s.failures = 0
		s.frames.Add(1)
		return nil
	}
	if !errors.Is(err, st7735.ErrBus) {
		return fmt.Errorf("refresh: write frame: %w", err)
	}

	s.failures++
	s.logger.Warn("frame dropped", "failures", s.failures, "max", s.opts.MaxBusFailures, "error", err)
	if s.failures >= s.opts.MaxBusFailures {
		return fmt.Errorf("%w after %d frames: %w", ErrBusExhausted, s.failures, err)
	}
	if rerr := s.display.ResetAndInit(); rerr != nil {
		s.logger.Warn("display reinit failed", "error", rerr)
	}
	return nil
}

func (s *Scheduler) stop() error {
	s.state.Store(int32(Stopping))
	if err := s.display.Halt(); err != nil {
		s.logger.Warn("display halt failed", "error", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
