package diagnostics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is the latest sample of the machine running the merge
// daemon, read through HostMonitor.Stats. It is not exported as a
// Prometheus metric, and cmd/mergeplay does not start a HostMonitor.
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
	LoadAverage1  float64
}

// HostMonitor samples host resource usage on a fixed interval.
type HostMonitor struct {
	logger *slog.Logger
	stop   chan struct{}
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats HostStats
}

// NewHostMonitor builds a HostMonitor. Call Start to begin sampling.
func NewHostMonitor(logger *slog.Logger) *HostMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostMonitor{
		logger: logger.With("component", "host_monitor"),
		stop:   make(chan struct{}),
	}
}

// Start begins periodic sampling on a background goroutine.
func (h *HostMonitor) Start(interval time.Duration) {
	h.wg.Add(1)
	go h.run(interval)
}

// Stop halts sampling and waits for the background goroutine to exit.
func (h *HostMonitor) Stop() {
	close(h.stop)
	h.wg.Wait()
}

// Stats returns the most recently collected sample.
func (h *HostMonitor) Stats() HostStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

func (h *HostMonitor) run(interval time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.collect()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.collect()
		}
	}
}

func (h *HostMonitor) collect() {
	var stats HostStats

	if percentage, err := cpu.Percent(0, false); err == nil && len(percentage) > 0 {
		stats.CPUPercent = percentage[0]
	} else {
		h.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = v.UsedPercent
	} else {
		h.logger.Debug("failed to collect memory stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		stats.LoadAverage1 = l.Load1
	} else {
		h.logger.Debug("failed to collect load stats", "error", err)
	}

	h.mu.Lock()
	h.stats = stats
	h.mu.Unlock()
}
