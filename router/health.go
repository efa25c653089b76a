package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-router/policy"
)

// Prober performs a single health check against a vendor, returning nil on
// success. It must be cheap and side-effect-free beyond the probe itself.
type Prober func(ctx context.Context) error

// VendorHealth is the per-vendor singleton described in the data model:
// healthy, ever_succeeded, last_success_ts, last_check_ts,
// consecutive_failures, next_check_delay. Mutated only by HealthMonitor.
type VendorHealth struct {
	Healthy             bool
	EverSucceeded       bool
	LastSuccessTS       time.Time
	LastCheckTS         time.Time
	ConsecutiveFailures int
	NextCheckDelay      time.Duration
}

const (
	initialProbeDelay = 2 * time.Second
	maxProbeDelay      = 60 * time.Second
	successThrottle    = 30 * time.Second
)

// HealthMonitor runs gated, backoff-scheduled probes for each enabled
// vendor and exposes a read-locked view of current health. Probe outcomes
// never count against the caller-visible circuit breaker; only calls made
// on behalf of real requests do.
type HealthMonitor struct {
	mu     sync.RWMutex
	health map[policy.Vendor]*VendorHealth
	probes map[policy.Vendor]Prober
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor constructs a monitor. Vendors start optimistically
// healthy so the first request is not penalized before any probe runs;
// StartupVendorPings gates whether a probe loop is actually scheduled.
func NewHealthMonitor(logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		health: map[policy.Vendor]*VendorHealth{
			policy.VendorPrimary:   {Healthy: true},
			policy.VendorSecondary: {Healthy: true},
		},
		probes: map[policy.Vendor]Prober{},
		logger: logger.With(zap.String("component", "health")),
	}
}

// Register attaches a Prober for a vendor. Call before Start.
func (h *HealthMonitor) Register(vendor policy.Vendor, p Prober) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[vendor] = p
}

// Start launches the probe goroutines if gated probing is enabled. It is a
// no-op (vendors remain optimistically healthy) when rules.StartupVendorPings
// is false, matching "probes are gated: skipped entirely unless explicitly
// enabled."
func (h *HealthMonitor) Start(ctx context.Context, enabled bool) {
	if !enabled {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.RLock()
	vendors := make([]policy.Vendor, 0, len(h.probes))
	for v := range h.probes {
		vendors = append(vendors, v)
	}
	h.mu.RUnlock()

	for _, v := range vendors {
		h.wg.Add(1)
		go h.probeLoop(ctx, v)
	}
}

// Stop cancels all probe goroutines and waits for them to exit.
func (h *HealthMonitor) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *HealthMonitor) probeLoop(ctx context.Context, vendor policy.Vendor) {
	defer h.wg.Done()
	delay := initialProbeDelay
	h.runProbe(ctx, vendor, &delay)
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			h.runProbe(ctx, vendor, &delay)
		}
	}
}

func (h *HealthMonitor) runProbe(ctx context.Context, vendor policy.Vendor, delay *time.Duration) {
	h.mu.RLock()
	prober := h.probes[vendor]
	h.mu.RUnlock()
	if prober == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := prober(probeCtx)
	cancel()

	h.mu.Lock()
	vh := h.health[vendor]
	vh.LastCheckTS = time.Now()
	if err == nil {
		vh.Healthy = true
		vh.EverSucceeded = true
		vh.LastSuccessTS = time.Now()
		vh.ConsecutiveFailures = 0
		*delay = successThrottle
	} else {
		vh.Healthy = false
		vh.ConsecutiveFailures++
		next := *delay * 2
		if next > maxProbeDelay {
			next = maxProbeDelay
		}
		if *delay < initialProbeDelay {
			*delay = initialProbeDelay
		} else {
			*delay = next
		}
		vh.NextCheckDelay = *delay
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("vendor probe failed", zap.String("vendor", string(vendor)), zap.Error(err), zap.Duration("next_check_delay", *delay))
	}
}

// IsHealthy returns the current health flag for vendor under a read lock.
func (h *HealthMonitor) IsHealthy(vendor policy.Vendor) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	vh, ok := h.health[vendor]
	if !ok {
		return false
	}
	return vh.Healthy
}

// Snapshot returns a copy of the VendorHealth for vendor.
func (h *HealthMonitor) Snapshot(vendor policy.Vendor) VendorHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.health[vendor]
}

// MarkResult lets a live (non-probe) adapter call update health eagerly on
// hard failure/success, independent of the ticker cadence, so the Picker
// reacts within the same request cycle rather than waiting for the next
// scheduled probe.
func (h *HealthMonitor) MarkResult(vendor policy.Vendor, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vh, ok := h.health[vendor]
	if !ok {
		return
	}
	if success {
		vh.Healthy = true
		vh.EverSucceeded = true
		vh.LastSuccessTS = time.Now()
		vh.ConsecutiveFailures = 0
	} else {
		vh.ConsecutiveFailures++
		if vh.ConsecutiveFailures >= 3 {
			vh.Healthy = false
		}
	}
}
