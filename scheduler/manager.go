package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"rally-dashboard/fetch"
	"rally-dashboard/ingest"
	"rally-dashboard/scoring"
)

// Manager drives the periodic fetch → ingest → rescore pipeline. A
// discovery loop keeps the ingest_targets collection in sync with the
// active rallies; a worker loop drains due targets under a concurrency
// limit. Cadence and concurrency are tunable at runtime through the
// server_settings collection.
type Manager struct {
	App          core.App
	Orchestrator *fetch.Orchestrator
	Ingest       *ingest.Service
	Engine       *scoring.Engine

	cfgMu sync.RWMutex
	cfg   Config

	discoveryTickerMu sync.Mutex
	discoveryTicker   *time.Ticker

	workerTickerMu sync.Mutex
	workerTicker   *time.Ticker

	workerSlotsMu sync.RWMutex
	workerSlots   chan struct{}

	reloadMu sync.Mutex
}

func NewManager(app core.App, orchestrator *fetch.Orchestrator, svc *ingest.Service, engine *scoring.Engine) *Manager {
	return &Manager{
		App:          app,
		Orchestrator: orchestrator,
		Ingest:       svc,
		Engine:       engine,
	}
}

// StartLoops seeds default settings, loads the runtime config and spawns
// the discovery and worker goroutines. Both stop when ctx is cancelled.
func (m *Manager) StartLoops(ctx context.Context) {
	m.ensureDefaultSettings()
	m.setConfig(m.loadConfigFromDB())
	m.resetWorkerLimiter()
	m.registerSettingHooks()

	go func() {
		cfg := m.currentConfig()
		interval := cfg.EventInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		m.setDiscoveryTicker(ticker)
		defer ticker.Stop()
		for {
			if m.isEnabled() {
				m.runDiscovery()
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		cfg := m.currentConfig()
		interval := cfg.WorkerInterval
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		m.setWorkerTicker(ticker)
		defer ticker.Stop()
		for {
			if m.isEnabled() {
				m.drainOnce(ctx)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Manager) currentConfig() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

func (m *Manager) setConfig(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()
}

func (m *Manager) setDiscoveryTicker(t *time.Ticker) {
	m.discoveryTickerMu.Lock()
	m.discoveryTicker = t
	m.discoveryTickerMu.Unlock()
}

func (m *Manager) setWorkerTicker(t *time.Ticker) {
	m.workerTickerMu.Lock()
	m.workerTicker = t
	m.workerTickerMu.Unlock()
}

func (m *Manager) resetDiscoveryTicker(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	m.discoveryTickerMu.Lock()
	ticker := m.discoveryTicker
	m.discoveryTickerMu.Unlock()
	if ticker != nil {
		ticker.Reset(interval)
	}
}

func (m *Manager) resetWorkerTicker(interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	m.workerTickerMu.Lock()
	ticker := m.workerTicker
	m.workerTickerMu.Unlock()
	if ticker != nil {
		ticker.Reset(interval)
	}
}

func (m *Manager) resetWorkerLimiter() {
	cfg := m.currentConfig()
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	m.workerSlotsMu.Lock()
	defer m.workerSlotsMu.Unlock()
	if m.workerSlots != nil && cap(m.workerSlots) == limit {
		return
	}
	m.workerSlots = make(chan struct{}, limit)
}

func (m *Manager) workerLimiter() chan struct{} {
	m.workerSlotsMu.RLock()
	defer m.workerSlotsMu.RUnlock()
	return m.workerSlots
}

// isEnabled checks server_settings key `scheduler.enabled` (default true).
func (m *Manager) isEnabled() bool {
	rec, err := m.App.FindFirstRecordByFilter("server_settings", "key = 'scheduler.enabled'", nil)
	if err != nil || rec == nil {
		return true
	}
	val := strings.ToLower(strings.TrimSpace(rec.GetString("value")))
	return !(val == "false" || val == "0" || val == "off")
}

func (m *Manager) registerSettingHooks() {
	handle := func(op string) func(*core.RecordEvent) error {
		return func(e *core.RecordEvent) error {
			var key string
			if e != nil && e.Record != nil {
				key = strings.TrimSpace(e.Record.GetString("key"))
			}
			if strings.HasPrefix(key, "scheduler.") {
				reason := fmt.Sprintf("%s:%s", op, key)
				go m.reloadConfig(reason)
			}
			return e.Next()
		}
	}

	m.App.OnRecordAfterCreateSuccess("server_settings").BindFunc(handle("create"))
	m.App.OnRecordAfterUpdateSuccess("server_settings").BindFunc(handle("update"))
	m.App.OnRecordAfterDeleteSuccess("server_settings").BindFunc(handle("delete"))
}

func (m *Manager) reloadConfig(reason string) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	prev := m.currentConfig()
	cfg := m.loadConfigFromDB()
	m.setConfig(cfg)

	m.resetDiscoveryTicker(cfg.EventInterval)
	m.resetWorkerTicker(cfg.WorkerInterval)
	m.resetWorkerLimiter()

	touched, err := m.reapplyTargetIntervals(cfg)
	if err != nil {
		slog.Error("scheduler.reload.error", "reason", reason, "err", err)
		return
	}
	slog.Info("scheduler.reload.success",
		"reason", reason,
		"changed", prev != cfg,
		"eventIntervalMs", cfg.EventInterval.Milliseconds(),
		"workerIntervalMs", cfg.WorkerInterval.Milliseconds(),
		"rescoreIntervalMs", cfg.RescoreInterval.Milliseconds(),
		"concurrency", cfg.Concurrency,
		"jitterMs", cfg.JitterMs,
		"targetsTouched", touched,
	)
}

func (m *Manager) reapplyTargetIntervals(cfg Config) (map[string]int, error) {
	records, err := m.App.FindAllRecords("ingest_targets")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	counts := make(map[string]int)
	for _, rec := range records {
		typeName := rec.GetString("type")
		sourceID := rec.GetString("sourceId")
		rallyID := rec.GetString("rally")
		switch typeName {
		case targetTypeEvent:
			m.upsertTarget(typeName, sourceID, rallyID, cfg.EventInterval, now)
		case targetTypeStandings:
			m.upsertTarget(typeName, sourceID, rallyID, cfg.RescoreInterval, now)
		default:
			continue
		}
		counts[typeName]++
	}
	return counts, nil
}
