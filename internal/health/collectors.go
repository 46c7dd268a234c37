package health

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// Collector gathers one host health metric for the status endpoint.
type Collector interface {
	Name() string
	Collect(ctx context.Context) interface{}
}

// CPUCollector reports CPU utilization across all cores.
type CPUCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the CPU collector.
func (c *CPUCollector) Name() string {
	return "cpuUsedPct"
}

// Collect retrieves the current CPU utilization percentage.
func (c *CPUCollector) Collect(ctx context.Context) interface{} {
	cpuPercentages, err := cpu.Percent(0, false)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get CPU usage")
		return nil
	}
	if len(cpuPercentages) == 0 {
		c.Logger.Warn().Msg("CPU usage data is empty")
		return nil
	}
	return &cpuPercentages[0]
}

// MemoryCollector reports the percentage of used virtual memory.
type MemoryCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the memory collector.
func (m *MemoryCollector) Name() string {
	return "memoryUsedPct"
}

// Collect retrieves the percentage of used virtual memory.
func (m *MemoryCollector) Collect(ctx context.Context) interface{} {
	memStats, err := mem.VirtualMemory()
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
		return nil
	}
	return &memStats.UsedPercent
}

// UptimeCollector reports the host uptime in seconds.
type UptimeCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the uptime collector.
func (u *UptimeCollector) Name() string {
	return "hostUptimeSeconds"
}

// Collect retrieves the host uptime.
func (u *UptimeCollector) Collect(ctx context.Context) interface{} {
	uptime, err := host.Uptime()
	if err != nil {
		u.Logger.Error().Err(err).Msg("Failed to retrieve host uptime")
		return nil
	}
	return uptime
}

// GoroutineCollector reports the number of active goroutines, a cheap proxy
// for leaked subscriber pumps.
type GoroutineCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the goroutine collector.
func (g *GoroutineCollector) Name() string {
	return "goroutines"
}

// Collect retrieves the number of active goroutines.
func (g *GoroutineCollector) Collect(ctx context.Context) interface{} {
	return runtime.NumGoroutine()
}
