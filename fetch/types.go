package fetch

import (
	"context"
	"time"

	"rally-dashboard/racenet"
)

// PageSource abstracts where leaderboard pages come from. The racenet
// client is the production implementation; tests substitute fakes.
type PageSource interface {
	FetchPage(ctx context.Context, eventID int64, stage, page int, assists racenet.AssistFilter) (racenet.Envelope, error)
}

// StageResult is one stage's fully merged leaderboard.
type StageResult struct {
	Stage        int
	Entries      []racenet.Entry
	RequestCount int
	Elapsed      time.Duration
}

// EventResult is the joined output of one event fetch. Stages are ordered
// by stage number; AssistedNames holds the drivers that appear on the
// assists-enabled leaderboard.
type EventResult struct {
	EventID       int64
	Stages        []StageResult
	AssistedNames map[string]struct{}
	RequestCount  int
	Elapsed       time.Duration
	FetchedAt     time.Time
}
