package diagnostics

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/switchyard-dev/switchyard/internal/logging"
)

// ExecConfig tunes the preflight checks run before each runner invocation.
type ExecConfig struct {
	// PreflightEnabled turns the resource checks on. When false,
	// RunPreflight always passes.
	PreflightEnabled bool
	// MinFreeFDPercent fails preflight when free descriptors drop below
	// this share of the limit.
	MinFreeFDPercent float64
	// MinFreeMemoryMB warns when available system memory drops below
	// this many megabytes.
	MinFreeMemoryMB uint64
}

// DefaultExecConfig returns the checks used by the runner adapter.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		PreflightEnabled: true,
		MinFreeFDPercent: 10,
		MinFreeMemoryMB:  256,
	}
}

// PreflightResult reports whether an execution may proceed.
type PreflightResult struct {
	OK       bool
	Warnings []string
	Errors   []string
	Snapshot ResourceSnapshot
}

// SafeExecutor gates runner invocations behind resource preflight and
// converts panics during execution into errors with a crash dump.
type SafeExecutor struct {
	cfg        ExecConfig
	monitor    *ResourceMonitor
	dumpWriter *CrashDumpWriter
	log        *logging.Logger
}

// NewSafeExecutor builds an executor. monitor is required; dumpWriter may be
// nil, in which case panics propagate unrecorded.
func NewSafeExecutor(cfg ExecConfig, monitor *ResourceMonitor, dumpWriter *CrashDumpWriter, log *logging.Logger) *SafeExecutor {
	if log == nil {
		log = logging.NewNop()
	}
	return &SafeExecutor{
		cfg:        cfg,
		monitor:    monitor,
		dumpWriter: dumpWriter,
		log:        log.WithComponent("safeexec"),
	}
}

// RunPreflight checks descriptor headroom, resource trends, and available
// memory. Errors block execution; warnings are logged and returned.
func (e *SafeExecutor) RunPreflight() PreflightResult {
	result := PreflightResult{OK: true}
	if !e.cfg.PreflightEnabled || e.monitor == nil {
		return result
	}

	result.Snapshot = e.monitor.TakeSnapshot()
	snap := result.Snapshot

	if snap.MaxFDs > 0 && e.cfg.MinFreeFDPercent > 0 {
		freePercent := 100 - snap.FDUsagePercent
		switch {
		case freePercent < e.cfg.MinFreeFDPercent:
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"insufficient file descriptors: %.1f%% free (%d/%d used), need %.1f%%",
				freePercent, snap.OpenFDs, snap.MaxFDs, e.cfg.MinFreeFDPercent))
		case freePercent < e.cfg.MinFreeFDPercent*1.5:
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"file descriptors running low: %.1f%% free (%d/%d used)",
				freePercent, snap.OpenFDs, snap.MaxFDs))
		}
	}

	trend := e.monitor.Trend()
	if !trend.Healthy {
		result.Warnings = append(result.Warnings, trend.Warnings...)
	}

	if e.cfg.MinFreeMemoryMB > 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			availableMB := vm.Available / (1024 * 1024)
			if availableMB < e.cfg.MinFreeMemoryMB {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"available memory low: %d MB (threshold %d MB)",
					availableMB, e.cfg.MinFreeMemoryMB))
			}
		}
	}

	for _, w := range result.Warnings {
		e.log.Warn("preflight warning", "warning", w)
	}
	for _, msg := range result.Errors {
		e.log.Error("preflight failure", "error", msg)
	}
	return result
}

// TrackCommand marks a subprocess as active and returns a release func to
// defer when it exits. The counts feed resource snapshots and crash dumps.
func (e *SafeExecutor) TrackCommand() func() {
	if e.monitor == nil {
		return func() {}
	}
	e.monitor.CommandStarted()
	return e.monitor.CommandFinished
}

// WrapExecution runs fn, converting a panic into an error after writing a
// crash dump.
func (e *SafeExecutor) WrapExecution(fn func() error) (err error) {
	if e.dumpWriter != nil {
		defer e.dumpWriter.RecoverAndReturn(&err)
	}
	return fn()
}
