package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const poweroffTimeout = 30 * time.Second

// Run drives the panel until SIGINT, SIGTERM, cancellation of ctx, the
// shutdown button or a fatal error. The button and the bus are always
// released before Run returns; a button trigger then powers the host off.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting statpanel",
		"period", a.cfg.Refresh.Period,
		"button", a.cfg.Button.Pin,
		"hold", a.cfg.Button.Hold,
	)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancelRun := context.WithCancel(sigCtx)
	defer cancelRun()

	var triggered atomic.Bool
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.monitor.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-a.monitor.Fired():
			triggered.Store(true)
			a.logger.Info("shutdown button triggered, stopping display")
			cancelRun()
		case <-gctx.Done():
		}
		return nil
	})

	runErr := g.Wait()
	if sigCtx.Err() != nil && ctx.Err() == nil {
		a.logger.Info("stop signal received")
	}
	a.release()

	if runErr != nil {
		a.logger.Error("statpanel failed", "error", runErr)
		return runErr
	}
	if triggered.Load() {
		a.logger.Info("powering off host")
		pctx, cancel := context.WithTimeout(context.Background(), poweroffTimeout)
		defer cancel()
		if err := a.shutdown.Shutdown(pctx); err != nil {
			a.logger.Error("poweroff failed", "error", err)
			return fmt.Errorf("agent: poweroff: %w", err)
		}
	}
	a.logger.Info("statpanel stopped")
	return nil
}

func (a *Agent) release() {
	if err := a.monitor.Close(); err != nil {
		a.logger.Warn("button release failed", "error", err)
	}
	CloseBus(a.bus, a.logger)
}
