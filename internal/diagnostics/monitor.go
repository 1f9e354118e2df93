package diagnostics

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/switchyard-dev/switchyard/internal/logging"
)

// ResourceSnapshot captures process resource state at a point in time.
type ResourceSnapshot struct {
	Timestamp      time.Time     `json:"timestamp"`
	OpenFDs        int           `json:"open_fds"`
	MaxFDs         int           `json:"max_fds"`
	FDUsagePercent float64       `json:"fd_usage_percent"`
	Goroutines     int           `json:"goroutines"`
	HeapAllocMB    float64       `json:"heap_alloc_mb"`
	ProcessUptime  time.Duration `json:"process_uptime"`
	CommandsRun    int64         `json:"commands_run"`
	CommandsActive int           `json:"commands_active"`
}

// ResourceTrend summarizes growth across the recorded history.
type ResourceTrend struct {
	FDGrowthRate        float64
	GoroutineGrowthRate float64
	MemoryGrowthRateMB  float64
	Healthy             bool
	Warnings            []string
}

// MonitorConfig tunes the sampling loop. Zero values pick defaults; zero
// thresholds disable the corresponding check.
type MonitorConfig struct {
	Interval           time.Duration
	FDThresholdPercent int
	GoroutineThreshold int
	HeapThresholdMB    int
	HistorySize        int
}

// ResourceMonitor samples process resources on an interval and keeps a
// bounded history for trend analysis and crash dumps.
type ResourceMonitor struct {
	cfg MonitorConfig
	log *logging.Logger

	mu      sync.RWMutex
	history []ResourceSnapshot

	commandsRun    atomic.Int64
	commandsActive atomic.Int32

	stopOnce sync.Once
	stopCh   chan struct{}
	started  time.Time
}

// NewResourceMonitor builds a monitor. Start must be called to begin
// sampling; TakeSnapshot works without it.
func NewResourceMonitor(cfg MonitorConfig, log *logging.Logger) *ResourceMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 120
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &ResourceMonitor{
		cfg:     cfg,
		log:     log.WithComponent("monitor"),
		history: make([]ResourceSnapshot, 0, cfg.HistorySize),
		stopCh:  make(chan struct{}),
		started: time.Now(),
	}
}

// Start launches the sampling loop. It stops when ctx is done or Stop is
// called.
func (m *ResourceMonitor) Start(ctx context.Context) {
	go func() {
		m.record(m.TakeSnapshot())

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.record(m.TakeSnapshot())
				for _, w := range m.CheckHealth() {
					m.log.Warn("resource threshold exceeded", "warning", w)
				}
			}
		}
	}()
}

// Stop halts the sampling loop. Safe to call more than once.
func (m *ResourceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// TakeSnapshot reads current process resource usage.
func (m *ResourceMonitor) TakeSnapshot() ResourceSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	open, limit := CountFDs()
	fdPercent := 0.0
	if limit > 0 {
		fdPercent = float64(open) / float64(limit) * 100
	}

	return ResourceSnapshot{
		Timestamp:      time.Now(),
		OpenFDs:        open,
		MaxFDs:         limit,
		FDUsagePercent: fdPercent,
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocMB:    float64(mem.HeapAlloc) / 1024 / 1024,
		ProcessUptime:  time.Since(m.started),
		CommandsRun:    m.commandsRun.Load(),
		CommandsActive: int(m.commandsActive.Load()),
	}
}

func (m *ResourceMonitor) record(s ResourceSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, s)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
}

// History returns a copy of the recorded snapshots, oldest first.
func (m *ResourceMonitor) History() []ResourceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ResourceSnapshot, len(m.history))
	copy(out, m.history)
	return out
}

// Latest returns the most recent recorded snapshot.
func (m *ResourceMonitor) Latest() (ResourceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return ResourceSnapshot{}, false
	}
	return m.history[len(m.history)-1], true
}

// Trend compares the oldest and newest snapshots and flags growth rates
// that look like leaks. Too little history reads as healthy.
func (m *ResourceMonitor) Trend() ResourceTrend {
	history := m.History()
	if len(history) < 2 {
		return ResourceTrend{Healthy: true}
	}

	first, last := history[0], history[len(history)-1]
	hours := last.Timestamp.Sub(first.Timestamp).Hours()
	if hours < 0.01 {
		return ResourceTrend{Healthy: true}
	}

	trend := ResourceTrend{
		FDGrowthRate:        float64(last.OpenFDs-first.OpenFDs) / hours,
		GoroutineGrowthRate: float64(last.Goroutines-first.Goroutines) / hours,
		MemoryGrowthRateMB:  (last.HeapAllocMB - first.HeapAllocMB) / hours,
		Healthy:             true,
	}

	if trend.FDGrowthRate > 10 {
		trend.Healthy = false
		trend.Warnings = append(trend.Warnings,
			fmt.Sprintf("file descriptors growing at %.1f/hour", trend.FDGrowthRate))
	}
	if trend.GoroutineGrowthRate > 100 {
		trend.Healthy = false
		trend.Warnings = append(trend.Warnings,
			fmt.Sprintf("goroutines growing at %.1f/hour", trend.GoroutineGrowthRate))
	}
	if trend.MemoryGrowthRateMB > 100 {
		trend.Healthy = false
		trend.Warnings = append(trend.Warnings,
			fmt.Sprintf("heap growing at %.1f MB/hour", trend.MemoryGrowthRateMB))
	}
	return trend
}

// CheckHealth compares the latest snapshot against the configured
// thresholds.
func (m *ResourceMonitor) CheckHealth() []string {
	snap, ok := m.Latest()
	if !ok {
		snap = m.TakeSnapshot()
	}

	var warnings []string
	if m.cfg.FDThresholdPercent > 0 && snap.FDUsagePercent > float64(m.cfg.FDThresholdPercent) {
		warnings = append(warnings,
			fmt.Sprintf("fd usage at %.1f%% (threshold %d%%)", snap.FDUsagePercent, m.cfg.FDThresholdPercent))
	}
	if m.cfg.GoroutineThreshold > 0 && snap.Goroutines > m.cfg.GoroutineThreshold {
		warnings = append(warnings,
			fmt.Sprintf("goroutine count at %d (threshold %d)", snap.Goroutines, m.cfg.GoroutineThreshold))
	}
	if m.cfg.HeapThresholdMB > 0 && snap.HeapAllocMB > float64(m.cfg.HeapThresholdMB) {
		warnings = append(warnings,
			fmt.Sprintf("heap at %.1f MB (threshold %d MB)", snap.HeapAllocMB, m.cfg.HeapThresholdMB))
	}
	return warnings
}

// CommandStarted records one runner subprocess start.
func (m *ResourceMonitor) CommandStarted() {
	m.commandsRun.Add(1)
	m.commandsActive.Add(1)
}

// CommandFinished records a runner subprocess exit.
func (m *ResourceMonitor) CommandFinished() {
	m.commandsActive.Add(-1)
}

// Uptime reports how long the monitor (and with it, the process) has been
// up.
func (m *ResourceMonitor) Uptime() time.Duration {
	return time.Since(m.started)
}
