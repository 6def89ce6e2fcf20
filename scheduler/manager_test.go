package scheduler

import (
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"

	_ "rally-dashboard/migrations"
)

func newTestManager(t *testing.T) (*tests.TestApp, *Manager) {
	t.Helper()
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatalf("new test app: %v", err)
	}
	t.Cleanup(app.Cleanup)
	return app, NewManager(app, nil, nil, nil)
}

func seedSchedulerSettings(t testing.TB, app core.App, cfg Config) {
	t.Helper()
	setSetting(t, app, "scheduler.eventIntervalMs", strconv.FormatInt(cfg.EventInterval.Milliseconds(), 10))
	setSetting(t, app, "scheduler.workerIntervalMs", strconv.FormatInt(cfg.WorkerInterval.Milliseconds(), 10))
	setSetting(t, app, "scheduler.rescoreIntervalMs", strconv.FormatInt(cfg.RescoreInterval.Milliseconds(), 10))
	setSetting(t, app, "scheduler.concurrency", strconv.Itoa(cfg.Concurrency))
	setSetting(t, app, "scheduler.jitterMs", strconv.Itoa(cfg.JitterMs))
}

func setSetting(t testing.TB, app core.App, key, value string) {
	t.Helper()
	rec, err := app.FindFirstRecordByFilter("server_settings", "key = {:k}", dbx.Params{"k": key})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("find setting %s: %v", key, err)
	}
	if rec == nil || errors.Is(err, sql.ErrNoRows) {
		col, err := app.FindCollectionByNameOrId("server_settings")
		if err != nil {
			t.Fatalf("setting collection: %v", err)
		}
		rec = core.NewRecord(col)
		rec.Set("key", key)
	}
	rec.Set("value", value)
	if err := app.Save(rec); err != nil {
		t.Fatalf("save setting %s: %v", key, err)
	}
}

func seedActiveRally(t testing.TB, app core.App, events []int64) string {
	t.Helper()
	seasons, err := app.FindCollectionByNameOrId("seasons")
	if err != nil {
		t.Fatalf("find seasons: %v", err)
	}
	season := core.NewRecord(seasons)
	season.Set("name", "Season")
	if err := app.Save(season); err != nil {
		t.Fatalf("seed season: %v", err)
	}

	rallies, err := app.FindCollectionByNameOrId("rallies")
	if err != nil {
		t.Fatalf("find rallies: %v", err)
	}
	rally := core.NewRecord(rallies)
	rally.Set("name", "Rally")
	rally.Set("season", season.Id)
	rally.Set("stageCount", 3)
	rally.Set("events", events)
	rally.Set("active", true)
	if err := app.Save(rally); err != nil {
		t.Fatalf("seed rally: %v", err)
	}
	return rally.Id
}

func getTarget(t testing.TB, app core.App, typ, sourceID string) *core.Record {
	t.Helper()
	rec, err := app.FindFirstRecordByFilter("ingest_targets",
		"type = {:t} && sourceId = {:sid}", dbx.Params{"t": typ, "sid": sourceID})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("find target %s/%s: %v", typ, sourceID, err)
	}
	return rec
}

func TestEnsureDefaultSettingsAndLoad(t *testing.T) {
	app, manager := newTestManager(t)

	manager.ensureDefaultSettings()
	cfg := manager.loadConfigFromDB()

	if cfg.EventInterval != time.Minute {
		t.Errorf("EventInterval = %v, want 1m", cfg.EventInterval)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}

	// Existing values survive re-seeding.
	setSetting(t, app, "scheduler.eventIntervalMs", "5000")
	manager.ensureDefaultSettings()
	cfg = manager.loadConfigFromDB()
	if cfg.EventInterval != 5*time.Second {
		t.Errorf("EventInterval = %v, want 5s", cfg.EventInterval)
	}
}

func TestDiscoverySeedsAndPrunesTargets(t *testing.T) {
	app, manager := newTestManager(t)
	manager.setConfig(Config{
		EventInterval:   10 * time.Second,
		RescoreInterval: 30 * time.Second,
		Concurrency:     1,
	})

	rallyID := seedActiveRally(t, app, []int64{101, 102})

	manager.runDiscovery()

	for _, sid := range []string{"101", "102"} {
		target := getTarget(t, app, targetTypeEvent, sid)
		if target == nil {
			t.Fatalf("event target %s not seeded", sid)
		}
		if target.GetString("rally") != rallyID {
			t.Errorf("target %s rally = %q, want %q", sid, target.GetString("rally"), rallyID)
		}
		if !target.GetBool("enabled") {
			t.Errorf("target %s not enabled", sid)
		}
	}
	if getTarget(t, app, targetTypeStandings, rallyID) == nil {
		t.Fatal("standings target not seeded")
	}

	// Drop one event from the rally; its target gets pruned.
	rally, err := app.FindRecordById("rallies", rallyID)
	if err != nil {
		t.Fatalf("find rally: %v", err)
	}
	rally.Set("events", []int64{101})
	if err := app.Save(rally); err != nil {
		t.Fatalf("update rally: %v", err)
	}

	manager.runDiscovery()

	if getTarget(t, app, targetTypeEvent, "102") != nil {
		t.Error("target 102 should have been pruned")
	}
	if getTarget(t, app, targetTypeEvent, "101") == nil {
		t.Error("target 101 should survive")
	}
}

func TestDiscoverySkipsInactiveRallies(t *testing.T) {
	app, manager := newTestManager(t)
	manager.setConfig(Config{EventInterval: 10 * time.Second, RescoreInterval: 30 * time.Second})

	rallyID := seedActiveRally(t, app, []int64{201})
	rally, err := app.FindRecordById("rallies", rallyID)
	if err != nil {
		t.Fatalf("find rally: %v", err)
	}
	rally.Set("active", false)
	if err := app.Save(rally); err != nil {
		t.Fatalf("deactivate rally: %v", err)
	}

	manager.runDiscovery()

	if getTarget(t, app, targetTypeEvent, "201") != nil {
		t.Error("inactive rally should seed no targets")
	}
}

func TestReloadConfigAppliesSettings(t *testing.T) {
	app, manager := newTestManager(t)

	initial := Config{
		EventInterval:   10 * time.Second,
		WorkerInterval:  200 * time.Millisecond,
		RescoreInterval: 60 * time.Second,
		Concurrency:     2,
		JitterMs:        100,
	}
	seedSchedulerSettings(t, app, initial)
	manager.setConfig(manager.loadConfigFromDB())
	manager.resetWorkerLimiter()

	rallyID := seedActiveRally(t, app, []int64{301})
	manager.runDiscovery()

	updated := Config{
		EventInterval:   3 * time.Second,
		WorkerInterval:  100 * time.Millisecond,
		RescoreInterval: 20 * time.Second,
		Concurrency:     4,
		JitterMs:        50,
	}
	seedSchedulerSettings(t, app, updated)
	manager.reloadConfig("test")

	if cfg := manager.currentConfig(); cfg != updated {
		t.Fatalf("config after reload = %#v, want %#v", cfg, updated)
	}

	manager.workerSlotsMu.RLock()
	slots := manager.workerSlots
	manager.workerSlotsMu.RUnlock()
	if cap(slots) != updated.Concurrency {
		t.Fatalf("limiter cap = %d, want %d", cap(slots), updated.Concurrency)
	}

	target := getTarget(t, app, targetTypeEvent, "301")
	if target.GetInt("intervalMs") != int(updated.EventInterval.Milliseconds()) {
		t.Errorf("event target interval = %d, want %d",
			target.GetInt("intervalMs"), updated.EventInterval.Milliseconds())
	}
	standings := getTarget(t, app, targetTypeStandings, rallyID)
	if standings.GetInt("intervalMs") != int(updated.RescoreInterval.Milliseconds()) {
		t.Errorf("standings target interval = %d, want %d",
			standings.GetInt("intervalMs"), updated.RescoreInterval.Milliseconds())
	}
}

func TestNextDueAtBackoff(t *testing.T) {
	_, manager := newTestManager(t)
	manager.setConfig(Config{JitterMs: 0})

	now := time.Now()

	// Success: exactly now + interval with zero jitter.
	due := manager.nextDueAt(now, 10*time.Second, false)
	if want := now.Add(10 * time.Second).UnixMilli(); due != want {
		t.Errorf("success due = %d, want %d", due, want)
	}

	// Error on a long interval caps at 10s.
	due = manager.nextDueAt(now, time.Minute, true)
	if want := now.Add(10 * time.Second).UnixMilli(); due != want {
		t.Errorf("error due = %d, want %d", due, want)
	}

	// Error on a short interval backs off 4x.
	due = manager.nextDueAt(now, time.Second, true)
	if want := now.Add(4 * time.Second).UnixMilli(); due != want {
		t.Errorf("short error due = %d, want %d", due, want)
	}
}

func TestFetchDueRowsOrdersByDueTime(t *testing.T) {
	app, manager := newTestManager(t)
	manager.setConfig(Config{EventInterval: 10 * time.Second})

	col, err := app.FindCollectionByNameOrId("ingest_targets")
	if err != nil {
		t.Fatalf("find ingest_targets: %v", err)
	}
	now := time.Now().UnixMilli()
	for i, sid := range []string{"late", "early", "future"} {
		rec := core.NewRecord(col)
		rec.Set("type", targetTypeEvent)
		rec.Set("sourceId", sid)
		rec.Set("enabled", true)
		switch i {
		case 0:
			rec.Set("nextDueAt", now-1000)
		case 1:
			rec.Set("nextDueAt", now-5000)
		case 2:
			rec.Set("nextDueAt", now+60000)
		}
		if err := app.Save(rec); err != nil {
			t.Fatalf("seed target %s: %v", sid, err)
		}
	}

	rows, err := manager.fetchDueRows(10)
	if err != nil {
		t.Fatalf("fetchDueRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d due rows, want 2", len(rows))
	}
	if rows[0].SourceID != "early" || rows[1].SourceID != "late" {
		t.Errorf("order = [%s %s], want [early late]", rows[0].SourceID, rows[1].SourceID)
	}
}
