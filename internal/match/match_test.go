package match

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

const (
	testMatchID = int64(1)

	playerAlice = int64(101)
	playerBob   = int64(201)

	platformAlice = int64(9001)
	platformBob   = int64(9002)

	mapOne = int64(1000)
	mapTwo = int64(2000)
)

func testSnapshot() *store.Snapshot {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &store.Snapshot{
		Match: store.Match{ID: testMatchID, Ongoing: true, RoundID: 7, LobbyID: "#mp_1"},
		Round: store.Round{ID: 7, BestOf: 3, MapPoolID: 3},
		Participants: []store.Participant{
			{
				ID:       10,
				TeamName: "Team A",
				Players: []store.Player{
					{ID: playerAlice, Name: "alice", PlatformID: platformAlice, State: store.StateNotJoined, ParticipantID: 10},
				},
			},
			{
				ID:       20,
				TeamName: "Team B",
				Players: []store.Player{
					{ID: playerBob, Name: "bob", PlatformID: platformBob, State: store.StateNotJoined, ParticipantID: 20},
				},
			},
		},
		Maps: []store.MatchMap{
			{ID: mapOne, MatchID: testMatchID, CreatedAt: base, Status: store.MapWaiting, MapExternalID: 555, Mods: "HR"},
		},
	}
}

func newTestRunner(t *testing.T) (*Runner, *store.Memory, *bancho.FakeLobby, *bancho.FakeSession) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedMatch(testSnapshot())

	session := bancho.NewFakeSession()
	lobby := bancho.NewFakeLobby("#mp_1")
	session.Lobbies["#mp_1"] = lobby

	r := New(Config{
		MatchID:      testMatchID,
		Store:        mem,
		Session:      session,
		Logger:       zap.NewNop(),
		RefereeName:  "Stan",
		LobbyPrefix:  "VASH",
		TickInterval: time.Millisecond,
	})
	r.AttachLobby(lobby)
	return r, mem, lobby, session
}

func mustSnapshot(t *testing.T, mem *store.Memory) *store.Snapshot {
	t.Helper()
	snap, err := mem.Snapshot(context.Background(), testMatchID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func TestTickStopsWhenMatchNoLongerOngoing(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	if _, err := mem.FinishMatch(ctx, testMatchID); err != nil {
		t.Fatalf("FinishMatch: %v", err)
	}
	done, err := r.tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !done {
		t.Fatalf("expected loop to report done for a finished match")
	}
}

func TestTickSurvivesSettingsError(t *testing.T) {
	r, _, lobby, _ := newTestRunner(t)
	ctx := context.Background()

	lobby.ScriptError(context.DeadlineExceeded)
	done, err := r.tick(ctx)
	if done {
		t.Fatalf("transient settings failure must not stop the loop")
	}
	if err == nil {
		t.Fatalf("expected the settings error to surface for logging")
	}
}

func TestEnsureLobbyCreatesAndConfigures(t *testing.T) {
	r, mem, _, session := newTestRunner(t)
	ctx := context.Background()

	snap := testSnapshot()
	snap.LobbyID = ""
	mem.SeedMatch(snap)

	if err := r.ensureLobby(ctx, snap); err != nil {
		t.Fatalf("ensureLobby: %v", err)
	}

	got := mustSnapshot(t, mem)
	if got.LobbyID == "" {
		t.Fatalf("lobby id not persisted")
	}
	created := session.Lobbies[got.LobbyID]
	if created == nil {
		t.Fatalf("created lobby %q not registered in session", got.LobbyID)
	}
	if !created.Locked || !created.Sized {
		t.Fatalf("lobby not configured: locked=%v sized=%v", created.Locked, created.Sized)
	}
	if len(created.Invited) != 2 {
		t.Fatalf("expected both players invited, got %v", created.Invited)
	}
	if len(created.Refs) != 1 || created.Refs[0] != "Stan" {
		t.Fatalf("referee not added: %v", created.Refs)
	}
}

func TestEnsureLobbyRejoinsExisting(t *testing.T) {
	r, mem, lobby, _ := newTestRunner(t)
	ctx := context.Background()

	snap := mustSnapshot(t, mem)
	if err := r.ensureLobby(ctx, snap); err != nil {
		t.Fatalf("ensureLobby: %v", err)
	}
	if r.currentLobby().ID() != lobby.ID() {
		t.Fatalf("expected rejoin of %q, got %q", lobby.ID(), r.currentLobby().ID())
	}
}
