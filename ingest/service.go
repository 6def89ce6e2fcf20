package ingest

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"rally-dashboard/fetch"
)

// Service reduces assembled event results to race ledger rows and keeps
// the rally's restarter list and event cache current.
type Service struct {
	App    core.App
	Ledger *Ledger
}

func NewService(app core.App) *Service {
	return &Service{App: app, Ledger: NewLedger(app)}
}

// Summary reports what one ProcessEvent pass did.
type Summary struct {
	Drivers    int
	Rows       int
	Inserted   int
	Restarters []string
}

// ProcessEvent runs the full ingest pass for one fetched event: derive
// per-stage deltas, flag restarters against the ledger, record every row
// and refresh the raw-response cache. All store writes happen in one
// transaction, so a failing pass leaves nothing behind.
func (s *Service) ProcessEvent(rallyID string, ev *fetch.EventResult) (*Summary, error) {
	times, err := DeriveDriverTimes(ev)
	if err != nil {
		return nil, fmt.Errorf("derive driver times: %w", err)
	}

	flagged, err := DetectRestarts(s.App, rallyID, times)
	if err != nil {
		return nil, fmt.Errorf("detect restarts: %w", err)
	}

	summary := &Summary{Drivers: len(times)}

	if err := s.App.RunInTransaction(func(txApp core.App) error {
		if len(flagged) > 0 {
			names, err := resolveRestarterNames(txApp, flagged)
			if err != nil {
				return err
			}
			added, err := unionRestarters(txApp, rallyID, names)
			if err != nil {
				return err
			}
			summary.Restarters = added
		}

		ledger := NewLedger(txApp)
		for _, dt := range times {
			for i, delta := range dt.Deltas {
				inserted, err := ledger.Insert(rallyID, dt.Nickname, i+1, delta, dt.Car, dt.Assists)
				if err != nil {
					return err
				}
				summary.Rows++
				if inserted {
					summary.Inserted++
				}
			}
		}

		return writeEventCache(txApp, rallyID, ev)
	}); err != nil {
		return nil, err
	}

	slog.Info("ingest.event.done",
		"rallyId", rallyID,
		"eventId", ev.EventID,
		"drivers", summary.Drivers,
		"rows", summary.Rows,
		"inserted", summary.Inserted,
		"restarters", len(summary.Restarters),
	)
	return summary, nil
}

// resolveRestarterNames maps flagged nicknames to canonical driver names
// where the registry knows them. Unregistered nicknames stay raw; scoring
// excludes their rows anyway.
func resolveRestarterNames(app core.App, flagged map[string]struct{}) ([]string, error) {
	names := make([]string, 0, len(flagged))
	for nick := range flagged {
		rec, err := app.FindFirstRecordByFilter("nicknames", "nick = {:nick}", dbx.Params{"nick": nick})
		if err == nil && rec != nil {
			names = append(names, rec.GetString("driver"))
			continue
		}
		names = append(names, nick)
	}
	sort.Strings(names)
	return names, nil
}

// unionRestarters merges names into the rally's restarters list and
// returns the ones that were actually new.
func unionRestarters(app core.App, rallyID string, names []string) ([]string, error) {
	rally, err := app.FindRecordById("rallies", rallyID)
	if err != nil {
		return nil, fmt.Errorf("find rally %s: %w", rallyID, err)
	}

	var current []string
	if err := rally.UnmarshalJSONField("restarters", &current); err != nil {
		current = nil
	}
	seen := make(map[string]struct{}, len(current))
	for _, name := range current {
		seen[name] = struct{}{}
	}

	var added []string
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		current = append(current, name)
		added = append(added, name)
	}
	if len(added) == 0 {
		return nil, nil
	}

	rally.Set("restarters", current)
	if err := app.Save(rally); err != nil {
		return nil, fmt.Errorf("update restarters on rally %s: %w", rallyID, err)
	}
	slog.Info("ingest.restart.flagged", "rallyId", rallyID, "added", added)
	return added, nil
}

type stageMeta struct {
	Stage        int   `json:"stage"`
	Entries      int   `json:"entries"`
	RequestCount int   `json:"requestCount"`
	ElapsedMs    int64 `json:"elapsedMs"`
}

// writeEventCache upserts the raw merged leaderboards and per-stage
// metadata for one event, keyed by the upstream event id.
func writeEventCache(app core.App, rallyID string, ev *fetch.EventResult) error {
	eventID := fmt.Sprintf("%d", ev.EventID)

	record, err := app.FindFirstRecordByFilter("event_cache", "eventId = {:eventId}", dbx.Params{"eventId": eventID})
	if err != nil || record == nil {
		col, err := app.FindCollectionByNameOrId("event_cache")
		if err != nil {
			return err
		}
		record = core.NewRecord(col)
		record.Set("eventId", eventID)
	}

	meta := make([]stageMeta, len(ev.Stages))
	payload := make(map[string]any, len(ev.Stages))
	for i, stage := range ev.Stages {
		meta[i] = stageMeta{
			Stage:        stage.Stage,
			Entries:      len(stage.Entries),
			RequestCount: stage.RequestCount,
			ElapsedMs:    stage.Elapsed.Milliseconds(),
		}
		payload[fmt.Sprintf("%d", stage.Stage)] = stage.Entries
	}

	record.Set("rally", rallyID)
	record.Set("payload", payload)
	record.Set("stageMeta", meta)
	record.Set("requestCount", ev.RequestCount)
	record.Set("elapsedMs", ev.Elapsed.Milliseconds())
	record.Set("fetchedAt", ev.FetchedAt.UnixMilli())
	return app.Save(record)
}
