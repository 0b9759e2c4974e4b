package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Shutdowner powers the host off.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a function to Shutdowner.
type ShutdownFunc func(ctx context.Context) error

func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// CommandShutdowner runs an external command, "systemctl poweroff" by
// default.
type CommandShutdowner []string

func (c CommandShutdowner) Shutdown(ctx context.Context) error {
	if len(c) == 0 {
		return errors.New("agent: empty shutdown command")
	}
	out, err := exec.CommandContext(ctx, c[0], c[1:]...).CombinedOutput()
	if err != nil {
		if msg := bytes.TrimSpace(out); len(msg) > 0 {
			return fmt.Errorf("%s: %w: %s", c[0], err, msg)
		}
		return fmt.Errorf("%s: %w", c[0], err)
	}
	return nil
}
