package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	"golang.org/x/sys/unix"
)

// Options configures the Linux host source.
type Options struct {
	Interface string // NIC whose IPv4 address is shown, e.g. eth0, wlan0, end0
	ShowIP    bool
	Unit      Unit
	Root      string // filesystem reported on the disk row
	ProcPath  string
	SysPath   string
}

// Host samples the local Linux host through procfs, sysfs and statfs.
type Host struct {
	opts   Options
	logger *slog.Logger

	hostname func() (string, error)
	lookupIP func(iface string) (string, error)
	cores    func() int
}

// NewHost returns a Source reading the local host.
func NewHost(opts Options, logger *slog.Logger) *Host {
	if opts.Interface == "" {
		opts.Interface = "eth0"
	}
	if opts.Unit == 0 {
		opts.Unit = Celsius
	}
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.ProcPath == "" {
		opts.ProcPath = procfs.DefaultMountPoint
	}
	if opts.SysPath == "" {
		opts.SysPath = sysfs.DefaultMountPoint
	}
	return &Host{
		opts:     opts,
		logger:   logger,
		hostname: os.Hostname,
		lookupIP: interfaceIPv4,
		cores:    runtime.NumCPU,
	}
}

// Snapshot samples every metric, substituting fallbacks for the ones that
// cannot be read.
func (h *Host) Snapshot(ctx context.Context) Snapshot {
	s := Snapshot{Identity: h.identity()}

	if v, err := h.cpu(); err != nil {
		h.degraded(ctx, "cpu", err)
	} else {
		s.CPU = v
	}

	if total, avail, err := h.memory(); err != nil {
		h.degraded(ctx, "ram", err)
	} else {
		s.RAMTotalMB, s.RAMAvailableMB = total, avail
	}

	if total, used, err := h.disk(); err != nil {
		h.degraded(ctx, "disk", err)
		s.DiskUnavailable = true
	} else {
		s.DiskTotalGB, s.DiskUsedGB = total, used
	}

	if v, err := h.temperature(); err != nil {
		h.degraded(ctx, "temperature", err)
	} else {
		s.Temperature = v
	}

	h.logger.Log(ctx, slog.LevelDebug, "telemetry snapshot",
		"identity", s.Identity,
		"cpu_bucket", s.CPU,
		"ram_total", humanize.IBytes(uint64(s.RAMTotalMB*1024*1024)),
		"ram_available", humanize.IBytes(uint64(s.RAMAvailableMB*1024*1024)),
		"disk_total", humanize.IBytes(uint64(s.DiskTotalGB)<<30),
		"disk_used", humanize.IBytes(uint64(s.DiskUsedGB)<<30),
		"temperature", s.Temperature,
	)
	return s
}

func (h *Host) degraded(ctx context.Context, metric string, err error) {
	h.logger.Log(ctx, slog.LevelWarn, "telemetry degraded", "metric", metric, "error", err)
}

func (h *Host) identity() string {
	name, err := h.hostname()
	if err != nil || name == "" {
		h.logger.Warn("hostname unavailable", "error", err)
		name = "unknown"
	}
	if !h.opts.ShowIP {
		return Identity(name, "", false)
	}
	ip, err := h.lookupIP(h.opts.Interface)
	if err != nil {
		h.logger.Debug("no address for identity line", "interface", h.opts.Interface, "error", err)
	}
	return Identity(name, ip, true)
}

func (h *Host) cpu() (uint8, error) {
	fs, err := procfs.NewFS(h.opts.ProcPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	la, err := fs.LoadAvg()
	if err != nil {
		return 0, fmt.Errorf("%w: loadavg: %w", ErrUnavailable, err)
	}
	return CPUBucket(la.Load1, h.cores()), nil
}

// memory returns total and available RAM in megabytes.
func (h *Host) memory() (float64, float64, error) {
	fs, err := procfs.NewFS(h.opts.ProcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: meminfo: %w", ErrUnavailable, err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil {
		return 0, 0, fmt.Errorf("%w: meminfo lacks MemTotal or MemAvailable", ErrUnavailable)
	}
	return float64(*mi.MemTotal) / 1024, float64(*mi.MemAvailable) / 1024, nil
}

// disk returns total and used gigabytes of the root filesystem. Used space
// counts what is unavailable to unprivileged users, matching df.
func (h *Host) disk() (uint32, uint32, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(h.opts.Root, &st); err != nil {
		return 0, 0, fmt.Errorf("%w: statfs %s: %w", ErrUnavailable, h.opts.Root, err)
	}
	block := uint64(st.Frsize)
	if block == 0 {
		block = uint64(st.Bsize)
	}
	total := st.Blocks * block
	avail := st.Bavail * block
	used := total - min(avail, total)
	return roundGiB(total), roundGiB(used), nil
}

func (h *Host) temperature() (uint8, error) {
	milli, err := h.thermalZone()
	if err != nil {
		return 0, err
	}
	return TemperatureBucket(milli, h.opts.Unit), nil
}

// thermalZone reads thermal zone 0 in millidegrees Celsius, falling back to
// the virtual device path some kernels expose instead of the class link.
func (h *Host) thermalZone() (int64, error) {
	fs, err := sysfs.NewFS(h.opts.SysPath)
	if err == nil {
		zones, zerr := fs.ClassThermalZoneStats()
		if zerr == nil {
			for _, z := range zones {
				if z.Name == "0" {
					return z.Temp, nil
				}
			}
		}
		err = zerr
	}

	path := filepath.Join(h.opts.SysPath, "devices", "virtual", "thermal", "thermal_zone0", "temp")
	b, rerr := os.ReadFile(path)
	if rerr != nil {
		return 0, fmt.Errorf("%w: thermal zone 0: %w", ErrUnavailable, rerr)
	}
	milli, perr := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("%w: parse %s: %w", ErrUnavailable, path, perr)
	}
	if err != nil {
		h.logger.Debug("thermal class unreadable, used virtual device", "error", err)
	}
	return milli, nil
}

// interfaceIPv4 returns the first IPv4 address bound to the named interface.
func interfaceIPv4(name string) (string, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			if v4 := ipn.IP.To4(); v4 != nil {
				return v4.String(), nil
			}
		}
	}
	return "", fmt.Errorf("%w: no IPv4 address on %s", ErrUnavailable, name)
}
