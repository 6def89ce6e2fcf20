package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rally-dashboard/racenet"
)

type pageKey struct {
	stage   int
	page    int
	assists racenet.AssistFilter
}

// fakeSource serves canned envelopes keyed by (stage, page, assists).
type fakeSource struct {
	mu    sync.Mutex
	pages map[pageKey]racenet.Envelope
	calls int
}

func (f *fakeSource) FetchPage(ctx context.Context, eventID int64, stage, page int, assists racenet.AssistFilter) (racenet.Envelope, error) {
	f.mu.Lock()
	f.calls++
	env, ok := f.pages[pageKey{stage, page, assists}]
	f.mu.Unlock()
	if !ok {
		return racenet.Envelope{}, fmt.Errorf("no fixture for stage=%d page=%d assists=%s", stage, page, assists)
	}
	return env, nil
}

func entries(names ...string) []racenet.Entry {
	out := make([]racenet.Entry, len(names))
	for i, name := range names {
		out[i] = racenet.Entry{Position: i + 1, Name: name, Time: "01:00.000"}
	}
	return out
}

func envelope(stage, page, pages, total int, ents []racenet.Entry) racenet.Envelope {
	return racenet.Envelope{
		EventID: 42,
		Stage:   stage,
		Page:    page,
		Response: racenet.Response{
			EventName:        "Rally Test",
			TotalStages:      2,
			Page:             page,
			Pages:            pages,
			LeaderboardTotal: total,
			Entries:          ents,
		},
	}
}

func newFixtureSource() *fakeSource {
	return &fakeSource{pages: map[pageKey]racenet.Envelope{
		// Summary leaderboard, any assists.
		{0, 1, racenet.AssistsAny}: envelope(0, 1, 1, 3, entries("alice", "bob", "carol")),
		// Stage 1 split across two pages.
		{1, 1, racenet.AssistsAny}: envelope(1, 1, 2, 3, entries("alice", "bob")),
		{1, 2, racenet.AssistsAny}: envelope(1, 2, 2, 3, entries("carol")),
		// Stage 2, one driver gone.
		{2, 1, racenet.AssistsAny}: envelope(2, 1, 1, 2, entries("alice", "carol")),
		// Assists-enabled leaderboard.
		{0, 1, racenet.AssistsEnabled}: envelope(0, 1, 1, 1, entries("bob")),
	}}
}

func TestFetchAssemblesStagesInOrder(t *testing.T) {
	src := newFixtureSource()
	o := NewOrchestrator(src)

	result, err := o.Fetch(context.Background(), 42)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.EventID != 42 {
		t.Errorf("EventID = %d, want 42", result.EventID)
	}
	if len(result.Stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(result.Stages))
	}
	if result.Stages[0].Stage != 1 || result.Stages[1].Stage != 2 {
		t.Errorf("stage order = [%d %d], want [1 2]", result.Stages[0].Stage, result.Stages[1].Stage)
	}

	stage1 := result.Stages[0].Entries
	if len(stage1) != 3 {
		t.Fatalf("stage 1 has %d entries, want 3", len(stage1))
	}
	wantNames := []string{"alice", "bob", "carol"}
	for i, want := range wantNames {
		if stage1[i].Name != want {
			t.Errorf("stage 1 entry %d = %q, want %q", i, stage1[i].Name, want)
		}
	}

	if _, ok := result.AssistedNames["bob"]; !ok {
		t.Errorf("AssistedNames missing bob: %v", result.AssistedNames)
	}
	if len(result.AssistedNames) != 1 {
		t.Errorf("AssistedNames = %v, want only bob", result.AssistedNames)
	}

	// summary + stage1 p1 + stage1 p2 + stage2 p1 + assists p1
	if result.RequestCount != 5 {
		t.Errorf("RequestCount = %d, want 5", result.RequestCount)
	}
}

func TestFetchLeaderboardTotalMismatch(t *testing.T) {
	src := newFixtureSource()
	// Stage 2 claims 5 entries but serves 2.
	env := src.pages[pageKey{2, 1, racenet.AssistsAny}]
	env.Response.LeaderboardTotal = 5
	src.pages[pageKey{2, 1, racenet.AssistsAny}] = env

	o := NewOrchestrator(src)
	_, err := o.Fetch(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var ce *ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ConsistencyError", err)
	}
	if ce.Stage != 2 {
		t.Errorf("ConsistencyError.Stage = %d, want 2", ce.Stage)
	}
}

func TestFetchStageEntryCountGrowth(t *testing.T) {
	src := newFixtureSource()
	// Stage 2 suddenly has more entries than stage 1.
	src.pages[pageKey{2, 1, racenet.AssistsAny}] = envelope(2, 1, 1, 4, entries("alice", "bob", "carol", "dave"))

	o := NewOrchestrator(src)
	_, err := o.Fetch(context.Background(), 42)
	if !IsConsistency(err) {
		t.Fatalf("error = %v, want consistency error", err)
	}
}

func TestFetchChildFailureFailsEvent(t *testing.T) {
	src := newFixtureSource()
	delete(src.pages, pageKey{1, 2, racenet.AssistsAny})

	o := NewOrchestrator(src)
	_, err := o.Fetch(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error when a page fetch fails")
	}
}

// gatedSource blocks the first call until released, to hold a fetch
// in flight while a second one is attempted.
type gatedSource struct {
	inner   PageSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) FetchPage(ctx context.Context, eventID int64, stage, page int, assists racenet.AssistFilter) (racenet.Envelope, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.inner.FetchPage(ctx, eventID, stage, page, assists)
}

func TestFetchBusyGuard(t *testing.T) {
	gated := &gatedSource{
		inner:   newFixtureSource(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := NewOrchestrator(gated)

	type outcome struct {
		result *EventResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := o.Fetch(context.Background(), 42)
		done <- outcome{r, err}
	}()

	<-gated.started

	if _, err := o.Fetch(context.Background(), 42); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent fetch error = %v, want ErrBusy", err)
	}

	close(gated.release)

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("first fetch failed: %v", out.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first fetch did not finish")
	}

	// The slot is free again once the first fetch returns.
	if _, err := o.Fetch(context.Background(), 42); err != nil {
		t.Fatalf("fetch after release: %v", err)
	}
}
