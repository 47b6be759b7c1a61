package match

import (
	"context"
	"testing"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

func TestProgressionWaitingToPlaying(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	cur, err := r.advanceMap(ctx, mustSnapshot(t, mem), &bancho.Settings{InProgress: true})
	if err != nil {
		t.Fatalf("advanceMap: %v", err)
	}
	if cur.Status != store.MapPlaying {
		t.Fatalf("map status = %v, want playing", cur.Status)
	}
	snap := mustSnapshot(t, mem)
	if snap.CurrentMap().Status != store.MapPlaying {
		t.Fatalf("persisted status = %v, want playing", snap.CurrentMap().Status)
	}
	for _, p := range snap.Players() {
		if p.State != store.StateInGame {
			t.Fatalf("player %s state = %v, want in_game", p.Name, p.State)
		}
	}
}

func TestProgressionPlayingToFinished(t *testing.T) {
	r, mem, _, _ := newTestRunner(t)
	ctx := context.Background()

	// first tick: live session playing
	if _, err := r.advanceMap(ctx, mustSnapshot(t, mem), &bancho.Settings{InProgress: true}); err != nil {
		t.Fatalf("advanceMap (playing): %v", err)
	}
	// second tick: play has stopped
	cur, err := r.advanceMap(ctx, mustSnapshot(t, mem), &bancho.Settings{InProgress: false})
	if err != nil {
		t.Fatalf("advanceMap (finished): %v", err)
	}
	if cur.Status != store.MapFinished {
		t.Fatalf("map status = %v, want finished", cur.Status)
	}
	snap := mustSnapshot(t, mem)
	for _, p := range snap.Players() {
		if p.State != store.StatePresent {
			t.Fatalf("player %s state = %v, want present after map end", p.Name, p.State)
		}
	}
}

func TestProgressionPushesConfigToLobby(t *testing.T) {
	r, mem, lobby, _ := newTestRunner(t)
	ctx := context.Background()

	// lobby is on the wrong map with no mods
	settings := &bancho.Settings{MapID: 111, Mods: ""}
	if _, err := r.advanceMap(ctx, mustSnapshot(t, mem), settings); err != nil {
		t.Fatalf("advanceMap: %v", err)
	}
	if lobby.MapSet != 555 {
		t.Fatalf("lobby map = %d, want 555", lobby.MapSet)
	}
	if lobby.ModsSet != "HR" {
		t.Fatalf("lobby mods = %q, want HR", lobby.ModsSet)
	}
}

func TestProgressionConfigMatchesNoPush(t *testing.T) {
	r, mem, lobby, _ := newTestRunner(t)
	ctx := context.Background()

	settings := &bancho.Settings{MapID: 555, Mods: "HR"}
	if _, err := r.advanceMap(ctx, mustSnapshot(t, mem), settings); err != nil {
		t.Fatalf("advanceMap: %v", err)
	}
	if lobby.MapSet != 0 || lobby.ModsSet != "" {
		t.Fatalf("config re-pushed although lobby already matches")
	}
}

func TestReadinessStartsWhenAllReady(t *testing.T) {
	r, mem, lobby, _ := newTestRunner(t)
	ctx := context.Background()

	snap := mustSnapshot(t, mem)
	settings := &bancho.Settings{
		Slots: []bancho.Slot{
			{PlatformID: platformAlice, Ready: true},
			{PlatformID: platformBob, Ready: true},
		},
	}
	if err := r.checkReadiness(ctx, snap, settings, snap.CurrentMap()); err != nil {
		t.Fatalf("checkReadiness: %v", err)
	}
	if lobby.StartedN != 1 {
		t.Fatalf("start calls = %d, want 1", lobby.StartedN)
	}
}

func TestReadinessWaitsAndNoticesOnce(t *testing.T) {
	r, mem, lobby, _ := newTestRunner(t)
	ctx := context.Background()

	snap := mustSnapshot(t, mem)
	settings := &bancho.Settings{
		Slots: []bancho.Slot{{PlatformID: platformAlice, Ready: true}},
	}
	for i := 0; i < 3; i++ {
		if err := r.checkReadiness(ctx, snap, settings, snap.CurrentMap()); err != nil {
			t.Fatalf("checkReadiness round %d: %v", i, err)
		}
	}
	if lobby.StartedN != 0 {
		t.Fatalf("game started with half the roster missing")
	}
	if len(lobby.Messages) != 1 {
		t.Fatalf("waiting notice sent %d times, want 1", len(lobby.Messages))
	}
}
