package render

import (
	"strconv"
	"strings"

	"github.com/flavioheleno/statpanel/internal/telemetry"
)

// Lines is the text of each band, already fitted to the column budget.
type Lines struct {
	Identity string
	Divider  string
	CPU      string
	RAM      string
	Disk     string
	Temp     string
}

// Lines formats s without drawing it.
func (r *Renderer) Lines(s telemetry.Snapshot) Lines {
	return Lines{
		Identity: fit(printable(s.Identity), r.cols),
		Divider:  strings.Repeat("-", r.cols),
		CPU:      fit(formatCPU(s.CPU), r.cols),
		RAM:      fit(formatRAM(s.RAMTotalMB-s.RAMAvailableMB, s.RAMTotalMB, r.cols), r.cols),
		Disk:     fit(formatDisk(s), r.cols),
		Temp:     fit(formatTemp(s.Temperature, r.unit), r.cols),
	}
}

// printable maps every rune outside printable ASCII to '?'.
func printable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c < 0x20 || c > 0x7E {
			c = '?'
		}
		b.WriteRune(c)
	}
	return b.String()
}

// fit truncates an ASCII string to n glyphs.
func fit(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// CPUPercent rounds a 0-255 load bucket to a percentage.
func CPUPercent(bucket uint8) int {
	return (int(bucket)*100 + 127) / 255
}

func formatCPU(bucket uint8) string {
	return "CPU " + strconv.Itoa(CPUPercent(bucket)) + "%"
}

// formatRAM prints used/total in MB, switching to one-decimal GB when the
// MB form does not fit in cols.
func formatRAM(used, total float64, cols int) string {
	if total <= 0 {
		return "RAM --"
	}
	used = min(max(used, 0), total)
	mb := "RAM " + strconv.FormatFloat(used, 'f', 0, 64) + "/" + strconv.FormatFloat(total, 'f', 0, 64) + "MB"
	if len(mb) <= cols {
		return mb
	}
	return "RAM " + strconv.FormatFloat(used/1024, 'f', 1, 64) + "/" + strconv.FormatFloat(total/1024, 'f', 1, 64) + "GB"
}

func formatDisk(s telemetry.Snapshot) string {
	if s.DiskUnavailable {
		return "DISK --"
	}
	used := min(s.DiskUsedGB, s.DiskTotalGB)
	return "DISK " + strconv.FormatUint(uint64(used), 10) + "/" + strconv.FormatUint(uint64(s.DiskTotalGB), 10) + "GB"
}

func formatTemp(t uint8, u telemetry.Unit) string {
	return "TEMP " + strconv.Itoa(int(t)) + string(rune(u))
}
