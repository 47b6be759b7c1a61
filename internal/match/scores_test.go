package match

import (
	"context"
	"testing"
	"time"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

func finishedMapSnapshot(t *testing.T, mem *store.Memory) *store.Snapshot {
	t.Helper()
	snap := mustSnapshot(t, mem)
	if err := mem.SetMapStatus(context.Background(), mapOne, store.MapFinished); err != nil {
		t.Fatalf("SetMapStatus: %v", err)
	}
	snap.Maps[0].Status = store.MapFinished
	return snap
}

func TestAggregateWritesLiveValues(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	mem.SeedScore(store.Score{ID: 1, MatchMapID: mapOne, PlayerID: playerAlice, PlatformID: platformAlice, Value: 0, CreatedAt: base})
	mem.SeedScore(store.Score{ID: 2, MatchMapID: mapOne, PlayerID: playerBob, PlatformID: platformBob, Value: 0, CreatedAt: base.Add(time.Second)})

	snap := finishedMapSnapshot(t, mem)
	settings := &bancho.Settings{Scores: []bancho.SlotScore{
		{PlatformID: platformAlice, Score: 712345, Passed: true},
		{PlatformID: platformBob, Score: 650000, Passed: false},
	}}
	if err := r.aggregateScores(ctx, snap, settings, snap.CurrentMap()); err != nil {
		t.Fatalf("aggregateScores: %v", err)
	}

	got, _ := mem.ScoreOf(1)
	if got.Value != 712345 || got.Failed {
		t.Fatalf("alice row = {value %d, failed %v}, want {712345, false}", got.Value, got.Failed)
	}
	got, _ = mem.ScoreOf(2)
	if got.Value != 650000 || !got.Failed {
		t.Fatalf("bob row = {value %d, failed %v}, want {650000, true}", got.Value, got.Failed)
	}
}

func TestAggregateDuplicateRowsEarliestGetsPlusOne(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	// two rows for alice on the same map; the later one was created first
	mem.SeedScore(store.Score{ID: 5, MatchMapID: mapOne, PlayerID: playerAlice, PlatformID: platformAlice, CreatedAt: base.Add(time.Minute)})
	mem.SeedScore(store.Score{ID: 6, MatchMapID: mapOne, PlayerID: playerAlice, PlatformID: platformAlice, CreatedAt: base})

	snap := finishedMapSnapshot(t, mem)
	settings := &bancho.Settings{Scores: []bancho.SlotScore{
		{PlatformID: platformAlice, Score: 500000, Passed: true},
	}}
	if err := r.aggregateScores(ctx, snap, settings, snap.CurrentMap()); err != nil {
		t.Fatalf("aggregateScores: %v", err)
	}

	first, _ := mem.ScoreOf(6)
	if first.Value != 500001 {
		t.Fatalf("earliest duplicate = %d, want 500001", first.Value)
	}
	second, _ := mem.ScoreOf(5)
	if second.Value != 500000 {
		t.Fatalf("later duplicate = %d, want 500000", second.Value)
	}
}

func TestAggregateSkipsPlayersWithoutLiveEntry(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	mem.SeedScore(store.Score{ID: 9, MatchMapID: mapOne, PlayerID: playerAlice, PlatformID: platformAlice, Value: 42})

	snap := finishedMapSnapshot(t, mem)
	// live results hold only bob; alice's row must keep its value
	settings := &bancho.Settings{Scores: []bancho.SlotScore{
		{PlatformID: platformBob, Score: 100, Passed: true},
	}}
	if err := r.aggregateScores(ctx, snap, settings, snap.CurrentMap()); err != nil {
		t.Fatalf("aggregateScores: %v", err)
	}
	got, _ := mem.ScoreOf(9)
	if got.Value != 42 {
		t.Fatalf("row without live entry rewritten to %d", got.Value)
	}
}

func TestAggregateRunsOncePerMap(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	mem.SeedScore(store.Score{ID: 3, MatchMapID: mapOne, PlayerID: playerAlice, PlatformID: platformAlice})

	snap := finishedMapSnapshot(t, mem)
	settings := &bancho.Settings{Scores: []bancho.SlotScore{
		{PlatformID: platformAlice, Score: 100, Passed: true},
	}}
	if err := r.aggregateScores(ctx, snap, settings, snap.CurrentMap()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// drift the live value; a second pass on the same map must not pick it up
	settings.Scores[0].Score = 999
	again := mustSnapshot(t, mem)
	if err := r.aggregateScores(ctx, again, settings, again.CurrentMap()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	got, _ := mem.ScoreOf(3)
	if got.Value != 100 {
		t.Fatalf("aggregation re-ran on an already aggregated map: value %d", got.Value)
	}
}
