package refresh

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavioheleno/statpanel/image565"
	"github.com/flavioheleno/statpanel/internal/telemetry"
	"github.com/flavioheleno/statpanel/st7735"
)

type fakeDisplay struct {
	mu      sync.Mutex
	writes  int
	resets  int
	halts   int
	results []error // consumed by WriteFrame in order; nil once exhausted
}

func (d *fakeDisplay) WriteFrame(*image565.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	if len(d.results) == 0 {
		return nil
	}
	err := d.results[0]
	d.results = d.results[1:]
	return err
}

func (d *fakeDisplay) ResetAndInit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	return nil
}

func (d *fakeDisplay) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.halts++
	return nil
}

type fakeRenderer struct{ n int }

func (r *fakeRenderer) Render(telemetry.Snapshot) *image565.Frame {
	r.n++
	return image565.NewFrame(panelBounds)
}

var panelBounds = image.Rect(0, 0, st7735.DefaultWidth, st7735.DefaultHeight)

func source() telemetry.Source {
	return telemetry.SourceFunc(func(context.Context) telemetry.Snapshot {
		return telemetry.Snapshot{Identity: "NODE1"}
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stopAfter makes the scheduler's sleep cancel ctx once n cycles have run,
// recording each requested wait.
func stopAfter(s *Scheduler, cancel context.CancelFunc, n int) *[]time.Duration {
	var waits []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) >= n {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	return &waits
}

func busErr() error {
	return fmt.Errorf("%w: nack", st7735.ErrBus)
}

func TestRunWritesUntilCancelled(t *testing.T) {
	d := &fakeDisplay{}
	r := &fakeRenderer{}
	s := New(Options{Period: time.Second}, source(), r, d, discard())
	assert.Equal(t, Running, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAfter(s, cancel, 3)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 3, d.writes)
	assert.Equal(t, 3, r.n)
	assert.Equal(t, 1, d.halts)
	assert.Equal(t, uint64(3), s.Frames())
	assert.Equal(t, Stopping, s.State())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	d := &fakeDisplay{}
	s := New(Options{}, source(), &fakeRenderer{}, d, discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Run(ctx))
	assert.Zero(t, d.writes)
	assert.Equal(t, 1, d.halts)
}

func TestSleepAccountsForElapsed(t *testing.T) {
	d := &fakeDisplay{}
	s := New(Options{Period: time.Second}, source(), &fakeRenderer{}, d, discard())

	clock := time.Unix(0, 0)
	steps := []time.Duration{300 * time.Millisecond, 1500 * time.Millisecond}
	call := 0
	s.now = func() time.Time {
		// Every second call closes a cycle and advances the clock.
		if call%2 == 1 {
			clock = clock.Add(steps[(call/2)%len(steps)])
		}
		call++
		return clock
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waits := stopAfter(s, cancel, 2)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, []time.Duration{700 * time.Millisecond, 0}, *waits)
}

func TestBusFailureRecovers(t *testing.T) {
	d := &fakeDisplay{results: []error{busErr(), busErr(), nil}}
	s := New(Options{MaxBusFailures: 3}, source(), &fakeRenderer{}, d, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAfter(s, cancel, 4)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 4, d.writes)
	assert.Equal(t, 2, d.resets)
	assert.Equal(t, uint64(2), s.Frames())
	assert.Zero(t, s.failures)
}

func TestBusFailuresExhausted(t *testing.T) {
	d := &fakeDisplay{results: []error{busErr(), busErr(), busErr(), busErr(), busErr()}}
	s := New(Options{}, source(), &fakeRenderer{}, d, discard())
	s.sleep = func(context.Context, time.Duration) error { return nil }

	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrBusExhausted)
	assert.ErrorIs(t, err, st7735.ErrBus)
	assert.Equal(t, 5, d.writes)
	assert.Equal(t, 4, d.resets, "no reinit after the final failure")
	assert.Zero(t, d.halts)
	assert.Equal(t, Stopping, s.State())
}

func TestNonBusErrorIsFatal(t *testing.T) {
	d := &fakeDisplay{results: []error{st7735.ErrInvalidGeometry}}
	s := New(Options{}, source(), &fakeRenderer{}, d, discard())
	s.sleep = func(context.Context, time.Duration) error { return nil }

	err := s.Run(context.Background())
	require.ErrorIs(t, err, st7735.ErrInvalidGeometry)
	assert.False(t, errors.Is(err, ErrBusExhausted))
	assert.Zero(t, d.resets)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "State(7)", State(7).String())
}
