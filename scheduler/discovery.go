package scheduler

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const (
	targetTypeEvent     = "event"
	targetTypeStandings = "standings"
)

// runDiscovery reconciles ingest_targets against the active rallies: one
// event target per upstream event id, one standings target per rally.
// Targets whose rally went inactive or whose event left the rally's
// event list are pruned.
func (m *Manager) runDiscovery() {
	cfg := m.currentConfig()

	rallies, err := m.App.FindRecordsByFilter("rallies", "active = true", "", 0, 0, nil)
	if err != nil {
		slog.Warn("scheduler.discovery.rallies.error", "err", err)
		return
	}

	now := time.Now()
	valid := make(map[string]struct{})
	events := 0
	for _, rally := range rallies {
		var eventIDs []int64
		if err := rally.UnmarshalJSONField("events", &eventIDs); err != nil {
			slog.Warn("scheduler.discovery.events.error", "rallyId", rally.Id, "err", err)
			continue
		}
		for _, eventID := range eventIDs {
			sourceID := fmt.Sprintf("%d", eventID)
			m.upsertTarget(targetTypeEvent, sourceID, rally.Id, cfg.EventInterval, now)
			valid[targetTypeEvent+":"+sourceID] = struct{}{}
			events++
		}
		m.upsertTarget(targetTypeStandings, rally.Id, rally.Id, cfg.RescoreInterval, now)
		valid[targetTypeStandings+":"+rally.Id] = struct{}{}
	}

	m.pruneOrphans(valid)

	slog.Debug("scheduler.discovery.completed", "rallies", len(rallies), "events", events)
}

func (m *Manager) upsertTarget(t, sourceID, rallyID string, interval time.Duration, now time.Time) {
	rec, _ := m.App.FindFirstRecordByFilter("ingest_targets",
		"type = {:t} && sourceId = {:sid}", dbx.Params{"t": t, "sid": sourceID})

	// Stagger fresh targets across the interval so one discovery pass
	// does not make every event due at once.
	nextDueMs := int64(0)
	if rec != nil {
		nextDueMs = int64(rec.GetInt("nextDueAt"))
	}
	if nextDueMs == 0 && interval > 0 {
		phase := time.Duration(hash32(sourceID)) % interval
		nextDueMs = now.Add(phase).UnixMilli()
	}

	if rec == nil {
		col, err := m.App.FindCollectionByNameOrId("ingest_targets")
		if err != nil {
			slog.Warn("scheduler.upsertTarget.collection.error", "err", err)
			return
		}
		rec = core.NewRecord(col)
		rec.Set("type", t)
		rec.Set("sourceId", sourceID)
		rec.Set("enabled", true)
		rec.Set("priority", 0)
	}
	rec.Set("rally", rallyID)
	rec.Set("intervalMs", int(interval.Milliseconds()))
	rec.Set("nextDueAt", nextDueMs)
	if err := m.App.Save(rec); err != nil {
		slog.Warn("scheduler.upsertTarget.save.error", "type", t, "sourceId", sourceID, "err", err)
	}
}

func (m *Manager) pruneOrphans(valid map[string]struct{}) {
	all, err := m.App.FindAllRecords("ingest_targets")
	if err != nil {
		return
	}
	for _, rec := range all {
		key := rec.GetString("type") + ":" + rec.GetString("sourceId")
		if _, ok := valid[key]; ok {
			continue
		}
		if err := m.App.Delete(rec); err != nil {
			slog.Warn("scheduler.pruneOrphans.delete.error", "id", rec.Id, "err", err)
		}
	}
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
