package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

// advanceMap runs the per-map stage machine (waiting → playing → finished)
// against the lobby's in-progress signal, and otherwise pushes the persisted
// map/mod configuration down to the lobby. Configuration flows one way:
// store → session, never back.
//
// Returns the current map with any stage change applied, so later phases of
// the same tick see the new stage.
func (r *Runner) advanceMap(ctx context.Context, snap *store.Snapshot, settings *bancho.Settings) (*store.MatchMap, error) {
	cur := snap.CurrentMap()
	if cur == nil {
		r.log.Debug("no map scheduled yet")
		return nil, nil
	}

	switch {
	case settings.InProgress && cur.Status == store.MapWaiting:
		if err := r.cfg.Store.SetAllPlayerStates(ctx, snap.ID, store.StateInGame); err != nil {
			return cur, fmt.Errorf("set players in-game: %w", err)
		}
		if err := r.cfg.Store.SetMapStatus(ctx, cur.ID, store.MapPlaying); err != nil {
			return cur, fmt.Errorf("mark map playing: %w", err)
		}
		cur.Status = store.MapPlaying
		r.log.Info("map started", zap.Int64("map_id", cur.ID))

	case !settings.InProgress && cur.Status == store.MapPlaying:
		if err := r.cfg.Store.SetAllPlayerStates(ctx, snap.ID, store.StatePresent); err != nil {
			return cur, fmt.Errorf("set players present: %w", err)
		}
		if err := r.cfg.Store.SetMapStatus(ctx, cur.ID, store.MapFinished); err != nil {
			return cur, fmt.Errorf("mark map finished: %w", err)
		}
		cur.Status = store.MapFinished
		r.log.Info("map finished", zap.Int64("map_id", cur.ID))

	default:
		if err := r.pushMapConfig(ctx, cur, settings); err != nil {
			return cur, err
		}
	}
	return cur, nil
}

func (r *Runner) pushMapConfig(ctx context.Context, cur *store.MatchMap, settings *bancho.Settings) error {
	lobby := r.currentLobby()
	if cur.MapExternalID != 0 && cur.MapExternalID != settings.MapID {
		if err := lobby.SetMap(ctx, cur.MapExternalID); err != nil {
			return fmt.Errorf("set map: %w", err)
		}
		r.log.Info("pushed map to lobby", zap.Int64("map", cur.MapExternalID))
	}
	if cur.Mods != "" && cur.Mods != settings.Mods {
		if err := lobby.SetMods(ctx, cur.Mods, cur.Mods == "FM"); err != nil {
			return fmt.Errorf("set mods: %w", err)
		}
		r.log.Info("pushed mods to lobby", zap.String("mods", cur.Mods))
	}
	return nil
}

// checkReadiness starts play once every occupied slot is ready and the room
// holds at least the expected roster. While short of that, a single
// informational notice is sent per map.
func (r *Runner) checkReadiness(ctx context.Context, snap *store.Snapshot, settings *bancho.Settings, cur *store.MatchMap) error {
	if cur == nil || cur.Status != store.MapWaiting || settings.InProgress {
		return nil
	}

	expected := len(snap.Players())
	if len(settings.Slots) >= expected && settings.AllReady() {
		if err := r.currentLobby().Start(ctx); err != nil {
			return fmt.Errorf("start game: %w", err)
		}
		r.log.Info("all players ready, game started", zap.Int64("map_id", cur.ID))
		return nil
	}

	r.noticeMu.Lock()
	sent := r.noticeSent[cur.ID]
	if !sent {
		r.noticeSent[cur.ID] = true
	}
	r.noticeMu.Unlock()
	if !sent {
		text := r.render("lobby.waiting", nil,
			"Waiting for all players to ready up.")
		if err := r.currentLobby().SendMessage(ctx, text); err != nil {
			r.log.Warn("waiting notice failed", zap.Error(err))
		}
	}
	return nil
}
