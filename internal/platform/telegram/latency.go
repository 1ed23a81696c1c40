package telegram

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/open-builders/giveaway-engine/internal/common/logger"
)

// Pinger measures one round trip to the platform.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// LatencyMonitor probes the API periodically and reports whether the last
// round trip was fast enough for non-essential calls.
type LatencyMonitor struct {
	pinger    Pinger
	interval  time.Duration
	threshold time.Duration
	logger    zerolog.Logger

	usable  atomic.Bool
	latency atomic.Int64

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	first  sync.WaitGroup
}

func NewLatencyMonitor(p Pinger, interval, threshold time.Duration) *LatencyMonitor {
	m := &LatencyMonitor{
		pinger:    p,
		interval:  interval,
		threshold: threshold,
		logger:    logger.Component("latency"),
	}
	m.usable.Store(true)
	return m
}

// Usable reports whether the last probe finished under the threshold.
func (m *LatencyMonitor) Usable() bool {
	return m.usable.Load()
}

func (m *LatencyMonitor) Latency() time.Duration {
	return time.Duration(m.latency.Load())
}

// Probe runs one measurement. A failed call marks the platform unusable.
func (m *LatencyMonitor) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, max(m.threshold*2, time.Second))
	defer cancel()

	d, err := m.pinger.Ping(ctx)
	if err != nil {
		m.usable.Store(false)
		m.logger.Warn().Err(err).Msg("Latency probe failed")
		return
	}

	m.latency.Store(int64(d))
	usable := d < m.threshold
	if m.usable.Swap(usable) != usable {
		m.logger.Info().Dur("latency", d).Bool("usable", usable).Msg("Platform latency changed")
	}
}

// Start probes once and then every interval until Stop or ctx is done.
// Intervals under a second run every second.
func (m *LatencyMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(spec, func() { m.Probe(ctx) }); err != nil {
		m.logger.Error().Err(err).Str("spec", spec).Msg("Failed to schedule latency probe")
	}

	m.first.Add(1)
	go func() {
		defer m.first.Done()
		m.Probe(ctx)
	}()
	m.cron.Start()
}

// Stop halts the schedule and waits for a probe in flight.
func (m *LatencyMonitor) Stop() {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	m.first.Wait()
}
