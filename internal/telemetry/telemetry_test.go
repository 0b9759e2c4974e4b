package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		ip       string
		showIP   bool
		want     string
	}{
		{"ip hidden", "node1", "10.0.0.5", false, "NODE1"},
		{"ip shown", "node1", "10.0.0.5", true, "node1: 10.0.0.5"},
		{"ip unknown", "node1", "", true, "node1"},
		{"no hostname", "", "", false, "UNKNOWN"},
		{"non-ascii kept", "nœud-1", "", false, "NœUD-1"},
		{"case folding rune kept", "ſrv.ıo", "", false, "ſRV.ıO"},
		{"ip shown keeps case", "Node1", "10.0.0.5", true, "Node1: 10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identity(tt.hostname, tt.ip, tt.showIP))
		})
	}
}

func TestClampIdentity(t *testing.T) {
	long := strings.Repeat("a", 100)
	assert.Len(t, ClampIdentity(long), MaxIdentityLen)
	assert.Equal(t, "short", ClampIdentity("short"))

	// A multi-byte rune straddling the limit is dropped whole.
	s := strings.Repeat("a", MaxIdentityLen-1) + "é"
	got := ClampIdentity(s)
	assert.Equal(t, strings.Repeat("a", MaxIdentityLen-1), got)
	assert.Len(t, Identity(long, "192.168.100.200", true), MaxIdentityLen)
}

func TestCPUBucket(t *testing.T) {
	assert.Equal(t, uint8(0), CPUBucket(0, 4))
	assert.Equal(t, uint8(255), CPUBucket(16, 4))
	assert.Equal(t, uint8(255), CPUBucket(100, 4))
	assert.Equal(t, uint8(0), CPUBucket(-1, 4))
	assert.InDelta(t, 127, int(CPUBucket(8, 4)), 1)
	assert.Equal(t, CPUBucket(2, 1), CPUBucket(2, 0), "zero cores counts as one")

	prev := uint8(0)
	for load := 0.0; load <= 20; load += 0.25 {
		b := CPUBucket(load, 4)
		assert.GreaterOrEqual(t, b, prev, "load %v", load)
		prev = b
	}
}

func TestTemperatureBucket(t *testing.T) {
	tests := []struct {
		milli int64
		unit  Unit
		want  uint8
	}{
		{42000, Celsius, 42},
		{42600, Celsius, 43},
		{-5000, Celsius, 0},
		{300000, Celsius, 255},
		{100000, Fahrenheit, 212},
		{0, Fahrenheit, 32},
		{200000, Fahrenheit, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TemperatureBucket(tt.milli, tt.unit), "%d %c", tt.milli, tt.unit)
	}
}

func TestParseUnit(t *testing.T) {
	u, ok := ParseUnit("F")
	assert.True(t, ok)
	assert.Equal(t, Fahrenheit, u)
	u, ok = ParseUnit(" celsius ")
	assert.True(t, ok)
	assert.Equal(t, Celsius, u)
	_, ok = ParseUnit("kelvin")
	assert.False(t, ok)
}

func TestRoundGiB(t *testing.T) {
	assert.Equal(t, uint32(0), roundGiB(0))
	assert.Equal(t, uint32(1), roundGiB(1<<30))
	assert.Equal(t, uint32(2), roundGiB(3<<29))
	assert.Equal(t, uint32(1), roundGiB(3<<29-1))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fakeHost lays out the procfs and sysfs files the Host source reads.
func fakeHost(t *testing.T, classZone bool) (proc, sys string) {
	t.Helper()
	root := t.TempDir()
	proc = filepath.Join(root, "proc")
	sys = filepath.Join(root, "sys")

	writeFile(t, filepath.Join(proc, "loadavg"), "8.00 4.00 2.00 3/210 4242\n")
	writeFile(t, filepath.Join(proc, "meminfo"),
		"MemTotal:        3906560 kB\n"+
			"MemFree:          512000 kB\n"+
			"MemAvailable:    1953280 kB\n")

	if classZone {
		zone := filepath.Join(sys, "class", "thermal", "thermal_zone0")
		writeFile(t, filepath.Join(zone, "type"), "cpu-thermal\n")
		writeFile(t, filepath.Join(zone, "policy"), "step_wise\n")
		writeFile(t, filepath.Join(zone, "temp"), "48312\n")
	}
	writeFile(t, filepath.Join(sys, "devices", "virtual", "thermal", "thermal_zone0", "temp"), "48312\n")
	return proc, sys
}

func newTestHost(t *testing.T, opts Options) *Host {
	t.Helper()
	h := NewHost(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.hostname = func() (string, error) { return "node1", nil }
	h.lookupIP = func(string) (string, error) { return "10.0.0.5", nil }
	h.cores = func() int { return 4 }
	return h
}

func TestHostSnapshot(t *testing.T) {
	proc, sys := fakeHost(t, true)
	h := newTestHost(t, Options{ProcPath: proc, SysPath: sys, Root: t.TempDir()})

	s := h.Snapshot(context.Background())
	assert.Equal(t, "NODE1", s.Identity)
	assert.InDelta(t, 128, int(s.CPU), 1)
	assert.InDelta(t, 3815.0, s.RAMTotalMB, 0.01)
	assert.InDelta(t, 1907.5, s.RAMAvailableMB, 0.01)
	assert.False(t, s.DiskUnavailable)
	assert.LessOrEqual(t, s.DiskUsedGB, s.DiskTotalGB)
	assert.Equal(t, uint8(48), s.Temperature)
}

func TestHostVirtualThermalFallback(t *testing.T) {
	proc, sys := fakeHost(t, false)
	h := newTestHost(t, Options{ProcPath: proc, SysPath: sys, Unit: Fahrenheit, ShowIP: true})

	s := h.Snapshot(context.Background())
	assert.Equal(t, "node1: 10.0.0.5", s.Identity)
	// 48.312 C is 118.96 F.
	assert.Equal(t, uint8(119), s.Temperature)
}

func TestHostDegradedMetrics(t *testing.T) {
	root := t.TempDir()
	h := newTestHost(t, Options{
		ProcPath: filepath.Join(root, "missing-proc"),
		SysPath:  filepath.Join(root, "missing-sys"),
		Root:     filepath.Join(root, "missing-root"),
		ShowIP:   true,
	})
	h.hostname = func() (string, error) { return "", errors.New("uname failed") }
	h.lookupIP = func(string) (string, error) { return "", ErrUnavailable }

	s := h.Snapshot(context.Background())
	assert.Equal(t, "unknown", s.Identity)
	assert.Zero(t, s.CPU)
	assert.Zero(t, s.RAMTotalMB)
	assert.True(t, s.DiskUnavailable)
	assert.Zero(t, s.Temperature)
}

func TestHostErrorsWrapUnavailable(t *testing.T) {
	root := t.TempDir()
	h := newTestHost(t, Options{ProcPath: root, SysPath: root, Root: filepath.Join(root, "nope")})

	_, err := h.cpu()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, _, err = h.memory()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, _, err = h.disk()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = h.temperature()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSourceFunc(t *testing.T) {
	var src Source = SourceFunc(func(context.Context) Snapshot {
		return Snapshot{Identity: "X"}
	})
	assert.Equal(t, "X", src.Snapshot(context.Background()).Identity)
}
