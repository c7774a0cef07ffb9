package monitor

import (
	"bytes"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"crypto-price-alerts/internal/alert"
	"crypto-price-alerts/internal/metrics"
	"crypto-price-alerts/internal/realtime"
	"crypto-price-alerts/internal/types"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval     = 30 * time.Second
	DefaultCycleTimeout = 25 * time.Second
)

// Prices refreshes the shared snapshot from the provider
type Prices interface {
	Refresh(ctx context.Context) (types.PriceSnapshot, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, decision types.TriggerDecision) error
}

type Config struct {
	Interval     time.Duration
	CycleTimeout time.Duration
}

// Monitor runs the poll cycle on a fixed interval. At most one cycle is in
// flight; ticks that arrive while one is running are dropped.
type Monitor struct {
	prices     Prices
	store      alert.Store
	dispatcher Dispatcher
	notifier   realtime.Notifier
	metrics    *metrics.MonitorMetrics
	cfg        Config

	cron    *gocron.Scheduler
	running atomic.Bool

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewMonitor(prices Prices, store alert.Store, dispatcher Dispatcher, notifier realtime.Notifier, m *metrics.MonitorMetrics, cfg Config) (*Monitor, error) {
	if prices == nil {
		return nil, errors.New("monitor: no price source configured")
	}
	if store == nil || dispatcher == nil || m == nil {
		return nil, errors.New("monitor: store, dispatcher and metrics are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}

	return &Monitor{
		prices:     prices,
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    m,
		cfg:        cfg,
		cron:       gocron.NewScheduler(time.UTC),
	}, nil
}

// Start schedules the cycle. The first cycle runs one interval after start.
func (m *Monitor) Start() error {
	if _, err := m.cron.Every(m.cfg.Interval).WaitForSchedule().Do(m.Tick); err != nil {
		return errors.Wrap(err, "failed to schedule price monitor")
	}
	m.cron.StartAsync()
	log.Infof("Price monitor started, polling every %s", m.cfg.Interval)
	return nil
}

// Stop ends scheduling and waits for an in-flight cycle to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.cron.Stop()
	m.wg.Wait()
	log.Info("Price monitor stopped")
}

// Running reports whether a cycle is in flight
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Tick runs one guarded cycle unless another one is still running.
func (m *Monitor) Tick() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if !m.running.CompareAndSwap(false, true) {
		m.mu.Unlock()
		m.metrics.CyclesSkipped.Inc()
		log.Warn("⏭️ Previous price check still running, skipping tick")
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.running.Store(false)
		m.wg.Done()
	}()

	start := time.Now()
	result := m.guardedCycle()
	m.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	m.metrics.Cycles.WithLabelValues(result).Inc()
}

func (m *Monitor) guardedCycle() (result string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CycleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 4096)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic in price check: %v\nStack trace: %s", r, stackTrace)
			result = metrics.ResultPanic
		}
	}()

	if err := m.RunCycle(ctx); err != nil {
		log.Errorf("❌ Price check failed: %v", err)
		return metrics.ResultError
	}
	return metrics.ResultOK
}

// RunCycle fetches prices, publishes them and fires every alert whose
// condition holds. A fetch or listing failure aborts the cycle before any
// alert state changes; a failed dispatch only affects its own alert.
func (m *Monitor) RunCycle(ctx context.Context) error {
	log.Debug("🔄 Checking prices...")

	snapshot, err := m.prices.Refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch prices")
	}

	if m.notifier != nil {
		m.notifier.Broadcast(realtime.TopicPrices, snapshot.Quotes())
	}

	alerts, err := m.store.ListUnresolved(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load unresolved alerts")
	}

	decisions := alert.Evaluate(alerts, snapshot)
	log.Debugf("Evaluated %d alerts against %d prices, %d triggered", len(alerts), snapshot.Len(), len(decisions))

	for _, decision := range decisions {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "cycle interrupted")
		}
		// already logged and counted by the dispatcher, retried next cycle
		_ = m.dispatcher.Dispatch(ctx, decision)
	}

	return nil
}
