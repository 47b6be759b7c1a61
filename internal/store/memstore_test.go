package store

import (
	"context"
	"testing"
	"time"
)

func queuedMemory(t *testing.T, n int) *Memory {
	t.Helper()
	m := NewMemory()
	for i := 1; i <= n; i++ {
		m.SeedMatch(&Snapshot{Match: Match{ID: int64(i)}})
		m.SeedQueue(int64(i), i)
	}
	return m
}

func TestFinishMatchAppliesOnce(t *testing.T) {
	m := NewMemory()
	m.SeedMatch(&Snapshot{Match: Match{ID: 1, Ongoing: true}})
	ctx := context.Background()

	applied, err := m.FinishMatch(ctx, 1)
	if err != nil || !applied {
		t.Fatalf("first finish: applied=%v err=%v", applied, err)
	}
	applied, err = m.FinishMatch(ctx, 1)
	if err != nil || applied {
		t.Fatalf("second finish must be rejected: applied=%v err=%v", applied, err)
	}
}

func TestMarkMapAggregatedAppliesOnce(t *testing.T) {
	m := NewMemory()
	m.SeedMatch(&Snapshot{
		Match: Match{ID: 1, Ongoing: true},
		Maps:  []MatchMap{{ID: 10, MatchID: 1, Status: MapFinished}},
	})
	ctx := context.Background()

	applied, err := m.MarkMapAggregated(ctx, 10)
	if err != nil || !applied {
		t.Fatalf("first mark: applied=%v err=%v", applied, err)
	}
	applied, err = m.MarkMapAggregated(ctx, 10)
	if err != nil || applied {
		t.Fatalf("second mark must be rejected: applied=%v err=%v", applied, err)
	}
}

func TestConsumeQueuePositionOnlyAtHead(t *testing.T) {
	m := queuedMemory(t, 3)
	ctx := context.Background()

	ok, err := m.ConsumeQueuePosition(ctx, 2)
	if err != nil || ok {
		t.Fatalf("position 2 consumed: ok=%v err=%v", ok, err)
	}
	ok, err = m.ConsumeQueuePosition(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("head not consumed: ok=%v err=%v", ok, err)
	}
	// re-consuming a spent ticket fails
	ok, err = m.ConsumeQueuePosition(ctx, 1)
	if err != nil || ok {
		t.Fatalf("spent ticket re-consumed: ok=%v err=%v", ok, err)
	}
}

func TestCompactQueueClosesGaps(t *testing.T) {
	m := queuedMemory(t, 3)
	ctx := context.Background()

	if ok, _ := m.ConsumeQueuePosition(ctx, 1); !ok {
		t.Fatalf("head not consumed")
	}
	if err := m.CompactQueue(ctx); err != nil {
		t.Fatalf("CompactQueue: %v", err)
	}
	pos := m.QueuePositions()
	if pos[2] != 1 || pos[3] != 2 {
		t.Fatalf("positions after compaction = %v, want {2:1 3:2}", pos)
	}

	head, err := m.HeadOfQueue(ctx)
	if err != nil || head != 2 {
		t.Fatalf("head = %d err=%v, want 2", head, err)
	}
}

func TestSnapshotIsolatesCallers(t *testing.T) {
	m := NewMemory()
	m.SeedMatch(&Snapshot{
		Match: Match{ID: 1, Ongoing: true},
		Participants: []Participant{
			{ID: 10, Players: []Player{{ID: 101, State: StateNotJoined}}},
		},
		Maps: []MatchMap{{ID: 10, MatchID: 1, Status: MapWaiting, CreatedAt: time.Now()}},
	})
	ctx := context.Background()

	snap, err := m.Snapshot(ctx, 1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	// mutating the returned snapshot must not leak into the store
	snap.Participants[0].Players[0].State = StateInGame
	snap.Maps[0].Status = MapFinished

	again, err := m.Snapshot(ctx, 1)
	if err != nil {
		t.Fatalf("Snapshot (again): %v", err)
	}
	if again.Participants[0].Players[0].State != StateNotJoined {
		t.Fatalf("player state leaked through snapshot copy")
	}
	if again.Maps[0].Status != MapWaiting {
		t.Fatalf("map status leaked through snapshot copy")
	}
}

func TestSnapshotMissingMatch(t *testing.T) {
	m := NewMemory()
	if _, err := m.Snapshot(context.Background(), 99); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
