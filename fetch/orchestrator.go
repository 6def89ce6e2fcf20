package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"rally-dashboard/racenet"
)

// Orchestrator retrieves an event's stages and leaderboard pages and joins
// them into a single EventResult. At most one fetch runs per event
// identifier; concurrent calls for the same event fail with ErrBusy while
// different events fetch fully in parallel.
type Orchestrator struct {
	source PageSource
	busy   *busySet
}

func NewOrchestrator(source PageSource) *Orchestrator {
	return &Orchestrator{source: source, busy: newBusySet()}
}

// Fetch assembles the full result set for one event: summary, then one
// fan-out per stage (each fanning out again over its pages), then the
// assists-enabled leaderboard. Any child failure fails the whole fetch;
// no partial result is ever returned.
func (o *Orchestrator) Fetch(ctx context.Context, eventID int64) (*EventResult, error) {
	if !o.busy.acquire(eventID) {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrBusy)
	}
	defer o.busy.release(eventID)

	start := time.Now()
	var requests atomic.Int64

	summary, err := o.source.FetchPage(ctx, eventID, racenet.SummaryStage, 1, racenet.AssistsAny)
	requests.Add(1)
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	totalStages := summary.Response.TotalStages
	if totalStages <= 0 {
		return nil, &ConsistencyError{EventID: eventID, Reason: fmt.Sprintf("summary reports %d stages", totalStages)}
	}

	stages := make([]StageResult, totalStages)
	g, gctx := errgroup.WithContext(ctx)
	for stage := 1; stage <= totalStages; stage++ {
		stage := stage
		g.Go(func() error {
			sr, err := o.fetchStage(gctx, eventID, stage, &requests)
			if err != nil {
				return err
			}
			stages[stage-1] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Entries can only drop out between stages, never reappear.
	for i := 1; i < len(stages); i++ {
		if len(stages[i].Entries) > len(stages[i-1].Entries) {
			return nil, &ConsistencyError{
				EventID: eventID,
				Stage:   stages[i].Stage,
				Reason: fmt.Sprintf("stage has %d entries but stage %d has %d",
					len(stages[i].Entries), stages[i-1].Stage, len(stages[i-1].Entries)),
			}
		}
	}

	// The assists leaderboard resolves after the stage set, not alongside it.
	assisted, err := o.fetchAssistedNames(ctx, eventID, &requests)
	if err != nil {
		return nil, fmt.Errorf("fetch assisted names: %w", err)
	}

	result := &EventResult{
		EventID:       eventID,
		Stages:        stages,
		AssistedNames: assisted,
		RequestCount:  int(requests.Load()),
		Elapsed:       time.Since(start),
		FetchedAt:     time.Now(),
	}
	slog.Info("fetch.event.done",
		"eventId", eventID,
		"stages", len(stages),
		"assisted", len(assisted),
		"requests", result.RequestCount,
		"elapsedMs", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

// fetchStage retrieves page 1 of a stage, fans out over the remaining
// pages, and merges them in page order into one leaderboard.
func (o *Orchestrator) fetchStage(ctx context.Context, eventID int64, stage int, requests *atomic.Int64) (StageResult, error) {
	start := time.Now()

	first, err := o.source.FetchPage(ctx, eventID, stage, 1, racenet.AssistsAny)
	requests.Add(1)
	if err != nil {
		return StageResult{}, fmt.Errorf("stage %d page 1: %w", stage, err)
	}

	pages, err := o.fetchRemainingPages(ctx, eventID, stage, first, racenet.AssistsAny, requests)
	if err != nil {
		return StageResult{}, err
	}

	merged := mergePages(pages)
	if len(merged) != first.Response.LeaderboardTotal {
		return StageResult{}, &ConsistencyError{
			EventID: eventID,
			Stage:   stage,
			Reason:  fmt.Sprintf("merged %d entries, server reports %d", len(merged), first.Response.LeaderboardTotal),
		}
	}

	sr := StageResult{
		Stage:        stage,
		Entries:      merged,
		RequestCount: len(pages),
		Elapsed:      time.Since(start),
	}
	slog.Debug("fetch.stage.done", "eventId", eventID, "stage", stage, "pages", len(pages), "entries", len(merged))
	return sr, nil
}

// fetchAssistedNames runs the page fan-out against the assists-enabled
// leaderboard and collects the driver names found on it.
func (o *Orchestrator) fetchAssistedNames(ctx context.Context, eventID int64, requests *atomic.Int64) (map[string]struct{}, error) {
	first, err := o.source.FetchPage(ctx, eventID, racenet.SummaryStage, 1, racenet.AssistsEnabled)
	requests.Add(1)
	if err != nil {
		return nil, err
	}

	pages, err := o.fetchRemainingPages(ctx, eventID, racenet.SummaryStage, first, racenet.AssistsEnabled, requests)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{})
	for _, entry := range mergePages(pages) {
		names[entry.Name] = struct{}{}
	}
	return names, nil
}

// fetchRemainingPages fans out over pages 2..Pages and returns all
// envelopes ordered by page number, with first at index 0.
func (o *Orchestrator) fetchRemainingPages(ctx context.Context, eventID int64, stage int, first racenet.Envelope, assists racenet.AssistFilter, requests *atomic.Int64) ([]racenet.Envelope, error) {
	pageCount := first.Response.Pages
	if pageCount < 1 {
		pageCount = 1
	}

	pages := make([]racenet.Envelope, pageCount)
	pages[0] = first

	g, gctx := errgroup.WithContext(ctx)
	for page := 2; page <= pageCount; page++ {
		page := page
		g.Go(func() error {
			env, err := o.source.FetchPage(gctx, eventID, stage, page, assists)
			requests.Add(1)
			if err != nil {
				return fmt.Errorf("stage %d page %d: %w", stage, page, err)
			}
			pages[page-1] = env
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// mergePages concatenates page entries in page order. Siblings complete in
// arbitrary order but land at fixed indexes, so the merge is deterministic.
func mergePages(pages []racenet.Envelope) []racenet.Entry {
	var merged []racenet.Entry
	for _, page := range pages {
		merged = append(merged, page.Response.Entries...)
	}
	return merged
}
