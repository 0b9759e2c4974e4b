// Package agent wires the panel driver, telemetry, refresh loop and shutdown
// button into one process lifecycle.
package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"

	"github.com/flavioheleno/statpanel/internal/button"
	"github.com/flavioheleno/statpanel/internal/config"
	"github.com/flavioheleno/statpanel/internal/refresh"
	"github.com/flavioheleno/statpanel/internal/render"
	"github.com/flavioheleno/statpanel/internal/telemetry"
	"github.com/flavioheleno/statpanel/st7735"
)

// Deps are the resources the agent takes ownership of. Bus and Button are
// required; the rest default to the real host implementations.
type Deps struct {
	Bus      i2c.BusCloser
	Button   gpio.PinIn
	Source   telemetry.Source
	Shutdown Shutdowner

	// DisplaySleep replaces the driver's settle delays.
	DisplaySleep func(time.Duration)
}

// Agent owns the panel, the button and the refresh loop for one run.
type Agent struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       i2c.BusCloser
	dev       *st7735.Dev
	scheduler *refresh.Scheduler
	monitor   *button.Monitor
	shutdown  Shutdowner
}

// New brings the panel up and configures the button. On error every
// resource in deps has been released.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Agent, error) {
	if deps.Bus == nil {
		return nil, errors.New("agent: no display bus")
	}

	opts, err := driverOpts(cfg)
	if err != nil {
		CloseBus(deps.Bus, logger)
		return nil, fmt.Errorf("agent: %w", err)
	}
	opts.Sleep = deps.DisplaySleep
	dev, err := st7735.NewI2C(deps.Bus, cfg.Bus.Address, &opts)
	if err != nil {
		CloseBus(deps.Bus, logger)
		return nil, fmt.Errorf("agent: display init: %w", err)
	}
	logger.Info("display ready", "device", dev.String(), "address", fmt.Sprintf("%#02x", cfg.Bus.Address))

	line, err := button.Setup(deps.Button, cfg.Button.ActiveLow)
	if err != nil {
		if herr := dev.Halt(); herr != nil {
			logger.Warn("display halt failed", "error", herr)
		}
		CloseBus(deps.Bus, logger)
		return nil, fmt.Errorf("agent: shutdown button: %w", err)
	}

	src := deps.Source
	if src == nil {
		src = telemetry.NewHost(telemetry.Options{
			Interface: cfg.Telemetry.Interface,
			ShowIP:    cfg.Telemetry.ShowIP,
			Unit:      cfg.Unit(),
			Root:      cfg.Telemetry.Root,
			ProcPath:  cfg.Telemetry.ProcPath,
			SysPath:   cfg.Telemetry.SysPath,
		}, logger.With("component", "telemetry"))
	}
	sd := deps.Shutdown
	if sd == nil {
		sd = CommandShutdowner(cfg.Shutdown.Command)
	}

	r := render.New(render.Options{Bounds: dev.Bounds(), Unit: cfg.Unit()})
	sched := refresh.New(refresh.Options{
		Period:         cfg.Refresh.Period,
		MaxBusFailures: cfg.Refresh.MaxBusFailures,
	}, src, r, dev, logger.With("component", "refresh"))
	mon := button.NewMonitor(line, button.Options{
		ActiveLow:     cfg.Button.ActiveLow,
		Debounce:      cfg.Button.Debounce,
		Hold:          cfg.Button.Hold,
		PollInterval:  cfg.Button.PollInterval,
		MaxReadErrors: cfg.Button.MaxReadErrors,
	}, logger.With("component", "button"))

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		bus:       deps.Bus,
		dev:       dev,
		scheduler: sched,
		monitor:   mon,
		shutdown:  sd,
	}, nil
}

// driverOpts maps the bus and panel configuration onto driver options.
// Portrait rotations swap the visible window and its offsets.
func driverOpts(cfg *config.Config) (st7735.Opts, error) {
	o := st7735.DefaultOpts()
	speed, err := cfg.BusSpeed()
	if err != nil {
		return o, err
	}
	o.Speed = speed
	o.BGR = cfg.Panel.BGR
	o.Invert = cfg.Panel.Invert
	o.ChunkSize = cfg.Bus.ChunkSize
	switch cfg.Panel.Rotation {
	case 0:
		o.Rotation = st7735.Rotation0
	case 180:
		o.Rotation = st7735.Rotation180
	case 270:
		o.Rotation = st7735.Rotation270
	default:
		o.Rotation = st7735.Rotation90
	}
	if o.Rotation == st7735.Rotation0 || o.Rotation == st7735.Rotation180 {
		o.W, o.H = o.H, o.W
		o.XOffset, o.YOffset = o.YOffset, o.XOffset
	}
	return o, nil
}

// CloseBus closes b, logging a failure instead of returning it.
func CloseBus(b i2c.BusCloser, logger *slog.Logger) {
	if err := b.Close(); err != nil {
		logger.Warn("bus close failed", "bus", b.String(), "error", err)
	}
}

// ExitCode maps the result of Run to the process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

// BuildLogger returns the process logger configured by cfg.
func BuildLogger(cfg *config.Config) *slog.Logger {
	hOpts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hOpts))
}

// Frames is the number of frames written so far.
func (a *Agent) Frames() uint64 {
	return a.scheduler.Frames()
}
