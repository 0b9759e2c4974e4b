// Package button watches a GPIO push button and fires once when it is held
// long enough to request a shutdown.
package button

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// ErrGPIO is returned when the line cannot be configured or keeps failing to
// read.
var ErrGPIO = errors.New("button: gpio failure")

// Line is a configured input line.
type Line interface {
	Read() (gpio.Level, error)
	Halt() error
}

// Setup configures pin as an input with the pull resistor that holds it
// inactive: pull-up for active-low buttons, pull-down otherwise.
func Setup(pin gpio.PinIn, activeLow bool) (Line, error) {
	if pin == nil {
		return nil, fmt.Errorf("%w: no pin", ErrGPIO)
	}
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGPIO, pin.Name(), err)
	}
	return &pinLine{pin: pin}, nil
}

type pinLine struct {
	pin gpio.PinIn
}

func (l *pinLine) Read() (gpio.Level, error) {
	return l.pin.Read(), nil
}

func (l *pinLine) Halt() error {
	return l.pin.Halt()
}

// Options for a Monitor.
type Options struct {
	ActiveLow     bool
	Debounce      time.Duration // default 50ms
	Hold          time.Duration // default 3s
	PollInterval  time.Duration // default 10ms
	MaxReadErrors int           // default 3
}

// Monitor samples a Line and closes Fired once the button is held.
type Monitor struct {
	line   Line
	opts   Options
	deb    Debouncer
	logger *slog.Logger

	armed atomic.Bool
	fired chan struct{}
	once  sync.Once
	now   func() time.Time
}

// NewMonitor returns a Monitor sampling line.
func NewMonitor(line Line, opts Options, logger *slog.Logger) *Monitor {
	if opts.Debounce <= 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	if opts.Hold <= 0 {
		opts.Hold = 3 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.MaxReadErrors <= 0 {
		opts.MaxReadErrors = 3
	}
	return &Monitor{
		line:   line,
		opts:   opts,
		deb:    Debouncer{Debounce: opts.Debounce, Hold: opts.Hold, ActiveLow: opts.ActiveLow},
		logger: logger,
		fired:  make(chan struct{}),
		now:    time.Now,
	}
}

// Armed reports whether the line has been read at its idle level. Until
// then no press is recognised.
func (m *Monitor) Armed() bool {
	return m.armed.Load()
}

// Fired is closed exactly once, when the hold completes.
func (m *Monitor) Fired() <-chan struct{} {
	return m.fired
}

// Run polls the line until the trigger fires, ctx is done, or reads fail
// MaxReadErrors times in a row. Only the last case is an error.
func (m *Monitor) Run(ctx context.Context) error {
	idle := gpio.Low
	if m.opts.ActiveLow {
		idle = gpio.High
	}
	last := idle
	warned := false

	t := time.NewTicker(m.opts.PollInterval)
	defer t.Stop()

	errs := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		lvl, err := m.line.Read()
		if err != nil {
			errs++
			m.logger.Warn("button read failed", "attempt", errs, "max", m.opts.MaxReadErrors, "error", err)
			if errs >= m.opts.MaxReadErrors {
				return fmt.Errorf("%w: %d consecutive read failures: %w", ErrGPIO, errs, err)
			}
			continue
		}
		errs = 0

		// Edges only count once the line has been seen at rest, so a line
		// that is already active at startup never requests a shutdown.
		if !m.armed.Load() {
			if lvl != idle {
				if !warned {
					m.logger.Warn("button line active at startup, waiting for release", "level", lvl)
					warned = true
				}
				continue
			}
			m.armed.Store(true)
			m.logger.Debug("button armed")
			continue
		}

		now := m.now()
		var fire bool
		if lvl != last {
			last = lvl
			edge := Falling
			if lvl == gpio.High {
				edge = Rising
			}
			m.logger.Debug("button edge", "edge", edge, "at", now)
			fire = m.deb.Observe(Event{Edge: edge, At: now})
		} else {
			fire = m.deb.Tick(now)
		}
		if fire {
			m.logger.Info("shutdown button held", "hold", m.opts.Hold)
			m.once.Do(func() { close(m.fired) })
			return nil
		}
	}
}

// Close releases the line.
func (m *Monitor) Close() error {
	return m.line.Halt()
}
