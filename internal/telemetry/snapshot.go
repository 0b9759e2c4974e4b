// Package telemetry samples host health for the status panel.
package telemetry

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

// MaxIdentityLen bounds the identity string carried by a Snapshot, in bytes.
const MaxIdentityLen = 64

// ErrUnavailable marks a metric that could not be read; it is logged and
// replaced by a fallback value, never returned to callers.
var ErrUnavailable = errors.New("telemetry: metric unavailable")

// Unit selects the temperature scale.
type Unit byte

// Temperature units.
const (
	Celsius    Unit = 'C'
	Fahrenheit Unit = 'F'
)

// ParseUnit maps "C"/"F" (any case, also "celsius"/"fahrenheit") to a Unit.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "celsius":
		return Celsius, true
	case "f", "fahrenheit":
		return Fahrenheit, true
	}
	return 0, false
}

// Snapshot is one immutable sample of host health.
type Snapshot struct {
	Identity string

	// CPU is the 1-minute load per core as a 0-255 bucket.
	CPU uint8

	RAMTotalMB     float64
	RAMAvailableMB float64

	DiskTotalGB uint32
	DiskUsedGB  uint32
	// DiskUnavailable is set when the filesystem could not be queried.
	DiskUnavailable bool

	// Temperature is unit-adjusted and clamped to 0-255.
	Temperature uint8
}

// Source produces snapshots on demand. Implementations never fail; missing
// metrics degrade to their fallback values.
type Source interface {
	Snapshot(ctx context.Context) Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) Snapshot

// Snapshot calls f(ctx).
func (f SourceFunc) Snapshot(ctx context.Context) Snapshot {
	return f(ctx)
}

// Identity builds the identity line: "host: ip" when the IP is shown and
// known, the bare hostname when it is not known, and the hostname with its
// ASCII letters uppercased when IP display is off.
func Identity(hostname, ip string, showIP bool) string {
	if hostname == "" {
		hostname = "unknown"
	}
	if !showIP {
		return ClampIdentity(upperASCII(hostname))
	}
	if ip == "" {
		return ClampIdentity(hostname)
	}
	return ClampIdentity(hostname + ": " + ip)
}

// upperASCII uppercases a-z only. Other bytes, including every byte of a
// multi-byte rune, are kept as they are.
func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// ClampIdentity cuts s to MaxIdentityLen bytes without splitting a rune.
func ClampIdentity(s string) string {
	if len(s) <= MaxIdentityLen {
		return s
	}
	s = s[:MaxIdentityLen]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// CPUBucket maps the 1-minute load average to 0-255. The per-core ratio is
// clamped to [0, 4], so four fully loaded run queues per core saturate.
func CPUBucket(load1 float64, cores int) uint8 {
	if cores < 1 {
		cores = 1
	}
	ratio := load1 / float64(cores)
	if ratio < 0 || math.IsNaN(ratio) {
		ratio = 0
	}
	if ratio > 4 {
		ratio = 4
	}
	return uint8(ratio*(255.0/4.0) + 0.5)
}

// TemperatureBucket converts millidegrees Celsius to the configured unit,
// clamped to 0-255 and rounded.
func TemperatureBucket(milli int64, unit Unit) uint8 {
	t := float64(milli) / 1000
	if unit == Fahrenheit {
		t = t*9/5 + 32
	}
	if t < 0 {
		t = 0
	}
	if t > 255 {
		t = 255
	}
	return uint8(t + 0.5)
}

// roundGiB converts bytes to gigabytes rounded to nearest.
func roundGiB(b uint64) uint32 {
	return uint32((b + 1<<29) >> 30)
}
