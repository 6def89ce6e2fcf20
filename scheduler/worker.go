package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/pocketbase/dbx"

	"rally-dashboard/fetch"
	"rally-dashboard/scoring"
)

type dueRow struct {
	ID         string `db:"id"`
	Type       string `db:"type"`
	SourceID   string `db:"sourceId"`
	Rally      string `db:"rally"`
	NextDueAt  int64  `db:"nextDueAt"`
	IntervalMs int    `db:"intervalMs"`
	Priority   int    `db:"priority"`
}

func (m *Manager) drainOnce(ctx context.Context) {
	limiter := m.workerLimiter()
	if limiter == nil {
		return
	}
	available := cap(limiter) - len(limiter)
	if available <= 0 {
		return
	}
	rows, err := m.fetchDueRows(available)
	if err != nil {
		slog.Warn("scheduler.worker.query.error", "err", err)
		return
	}
	for _, rw := range rows {
		limiter <- struct{}{}
		go func(r dueRow) {
			defer func() { <-limiter }()
			m.processDueRow(ctx, r)
		}(rw)
	}
}

func (m *Manager) fetchDueRows(limit int) ([]dueRow, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowMs := time.Now().UnixMilli()
	var rows []dueRow
	q := `SELECT id, type, sourceId, rally, nextDueAt, intervalMs, priority
	      FROM ingest_targets
	      WHERE enabled = 1 AND nextDueAt <= {:now}
	      ORDER BY nextDueAt ASC, priority DESC
	      LIMIT {:lim}`
	if err := m.App.DB().NewQuery(q).Bind(dbx.Params{"now": nowMs, "lim": limit}).All(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *Manager) processDueRow(ctx context.Context, rw dueRow) {
	var runErr error
	switch rw.Type {
	case targetTypeEvent:
		runErr = m.runEventTarget(ctx, rw)
	case targetTypeStandings:
		_, runErr = m.Engine.Calculate(rw.Rally)
	default:
		slog.Warn("scheduler.worker.unknownType", "type", rw.Type)
	}

	// A busy identifier means another cycle is still working on it;
	// skip quietly and come back on the regular cadence.
	if errors.Is(runErr, fetch.ErrBusy) || errors.Is(runErr, scoring.ErrBusy) {
		m.rescheduleRowCustom(rw.ID, m.nextDueAt(time.Now(), m.intervalFor(rw), false), "busy")
		return
	}
	if runErr != nil {
		slog.Warn("scheduler.worker.targetError",
			"type", rw.Type, "sourceId", rw.SourceID, "rally", rw.Rally, "error", runErr)
	}
	m.rescheduleRow(rw.ID, rw.IntervalMs, runErr)
}

// runEventTarget runs one full pipeline pass for an upstream event:
// fetch, ingest, and rescore when the pass added ledger rows.
func (m *Manager) runEventTarget(ctx context.Context, rw dueRow) error {
	if rw.Rally == "" {
		return fmt.Errorf("event target %s has no rally", rw.SourceID)
	}
	eventID, err := strconv.ParseInt(rw.SourceID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad event sourceId %q: %w", rw.SourceID, err)
	}

	result, err := m.Orchestrator.Fetch(ctx, eventID)
	if err != nil {
		return err
	}
	summary, err := m.Ingest.ProcessEvent(rw.Rally, result)
	if err != nil {
		return err
	}
	if summary.Inserted == 0 {
		return nil
	}

	if _, err := m.Engine.Calculate(rw.Rally); err != nil {
		if errors.Is(err, scoring.ErrBusy) {
			slog.Info("scheduler.worker.rescore.busy", "rally", rw.Rally)
			return nil
		}
		return err
	}
	return nil
}

func (m *Manager) intervalFor(rw dueRow) time.Duration {
	if rw.IntervalMs > 0 {
		return time.Duration(rw.IntervalMs) * time.Millisecond
	}
	cfg := m.currentConfig()
	if rw.Type == targetTypeStandings {
		return cfg.RescoreInterval
	}
	return cfg.EventInterval
}

// rescheduleRow updates scheduling fields through the DAO so realtime
// subscriptions fire.
func (m *Manager) rescheduleRow(id string, intervalMs int, runErr error) {
	now := time.Now()
	interval := time.Duration(intervalMs) * time.Millisecond
	if interval <= 0 {
		interval = m.currentConfig().EventInterval
	}

	record, err := m.App.FindRecordById("ingest_targets", id)
	if err != nil {
		slog.Warn("scheduler.rescheduleRow.find.error", "id", id, "err", err)
		return
	}

	if runErr != nil {
		record.Set("lastStatus", fmt.Sprintf("error: %v", runErr))
		record.Set("nextDueAt", m.nextDueAt(now, interval, true))
	} else {
		record.Set("lastStatus", "ok")
		record.Set("lastFetchedAt", now.UnixMilli())
		record.Set("nextDueAt", m.nextDueAt(now, interval, false))
	}

	if err := m.App.Save(record); err != nil {
		slog.Warn("scheduler.rescheduleRow.save.error", "id", id, "err", err)
	}
}

// rescheduleRowCustom updates nextDueAt and lastStatus without touching
// lastFetchedAt.
func (m *Manager) rescheduleRowCustom(id string, nextDueAtMs int64, status string) {
	rec, err := m.App.FindRecordById("ingest_targets", id)
	if err != nil || rec == nil {
		slog.Warn("scheduler.rescheduleRowCustom.find.error", "id", id, "err", err)
		return
	}
	if status != "" {
		rec.Set("lastStatus", status)
	}
	rec.Set("nextDueAt", nextDueAtMs)
	if err := m.App.Save(rec); err != nil {
		slog.Warn("scheduler.rescheduleRowCustom.save.error", "id", id, "err", err)
	}
}

// nextDueAt computes the next due time.
// On success: now + interval + jitter (jitter <= min(JitterMs, interval/10)).
// On error: now + min(10s, 4*interval).
func (m *Manager) nextDueAt(now time.Time, interval time.Duration, hadError bool) int64 {
	if hadError {
		backoff := 10 * time.Second
		if bo := 4 * interval; backoff > bo {
			backoff = bo
		}
		return now.Add(backoff).UnixMilli()
	}
	intervalMs := int(interval / time.Millisecond)
	jitterCapMs := m.currentConfig().JitterMs
	if tenth := intervalMs / 10; tenth < jitterCapMs {
		jitterCapMs = tenth
	}
	jitter := 0
	if jitterCapMs > 0 {
		jitter = rand.Intn(jitterCapMs)
	}
	return now.Add(interval).Add(time.Duration(jitter) * time.Millisecond).UnixMilli()
}
