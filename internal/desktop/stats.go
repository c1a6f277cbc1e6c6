package desktop

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is a point-in-time host summary.
type SystemStats struct {
	CPUPercent   float64     `json:"cpu_percent"`
	Memory       MemoryStats `json:"memory"`
	TemperatureC float64     `json:"temperature_c,omitempty"`
	OS           string      `json:"os"`
	UptimeHours  float64     `json:"uptime_hours"`
}

type MemoryStats struct {
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// StatsProvider reads host statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (SystemStats, error)
}

// HostStats reads statistics through gopsutil. CPU usage is measured since the previous call.
type HostStats struct{}

func (HostStats) Stats(ctx context.Context) (SystemStats, error) {
	var out SystemStats

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		out.CPUPercent = round1(pct[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemStats{}, fmt.Errorf("read memory: %w", err)
	}
	out.Memory = MemoryStats{
		TotalGB:     round1(float64(vm.Total) / (1 << 30)),
		FreeGB:      round1(float64(vm.Available) / (1 << 30)),
		UsedPercent: round1(vm.UsedPercent),
	}

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		out.TemperatureC = averageTemperature(temps)
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		out.OS = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		if out.OS == "" {
			out.OS = info.OS
		}
		out.UptimeHours = round1(float64(info.Uptime) / 3600)
	}
	return out, nil
}

// Summary is the one-line form placed in the session's system instruction.
func (s SystemStats) Summary() string {
	parts := []string{
		fmt.Sprintf("CPU %.1f%%", s.CPUPercent),
		fmt.Sprintf("memory %.1f%% of %.1f GB used", s.Memory.UsedPercent, s.Memory.TotalGB),
	}
	if s.TemperatureC > 0 {
		parts = append(parts, fmt.Sprintf("temperature %.0fC", s.TemperatureC))
	}
	if s.OS != "" {
		parts = append(parts, "OS "+s.OS)
	}
	parts = append(parts, fmt.Sprintf("uptime %.1fh", s.UptimeHours))
	return strings.Join(parts, ", ")
}

func averageTemperature(temps []host.TemperatureStat) float64 {
	var sum float64
	var n int
	for _, t := range temps {
		if t.Temperature <= 0 || t.Temperature > 150 {
			continue
		}
		sum += t.Temperature
		n++
	}
	if n == 0 {
		return 0
	}
	return round1(sum / float64(n))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
