package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

// checkPresence derives every roster player's state from the live lobby:
// slot occupancy wins, otherwise a Whois probe distinguishes "online but
// absent" from "not joined at all". Probe errors are non-fatal and default
// to not-joined; the next tick retries.
func (r *Runner) checkPresence(ctx context.Context, snap *store.Snapshot, settings *bancho.Settings) error {
	for _, p := range snap.Players() {
		target := r.presenceTarget(ctx, &p, settings)
		if err := r.transitionPlayer(ctx, p.ID, p.State, target); err != nil {
			r.log.Warn("player state write failed",
				zap.Int64("player_id", p.ID), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) presenceTarget(ctx context.Context, p *store.Player, settings *bancho.Settings) store.PlayerState {
	if slot, ok := settings.SlotFor(p.PlatformID); ok {
		// An occupied slot during live play means in-game; presence must
		// not demote the progression controller's write.
		if p.State == store.StateInGame && settings.InProgress {
			return store.StateInGame
		}
		if slot.Ready {
			return store.StateReady
		}
		return store.StatePresent
	}
	if err := r.cfg.Session.Whois(ctx, p.PlatformID); err != nil {
		r.log.Debug("whois probe failed",
			zap.Int64("platform_id", p.PlatformID), zap.Error(err))
		return store.StateNotJoined
	}
	return store.StateAbsent
}

// transitionPlayer is the single state-write path shared by the tick and the
// push-event handlers. It writes the target value only on an actual change,
// so a duplicate trigger for the same condition is a no-op.
func (r *Runner) transitionPlayer(ctx context.Context, playerID int64, current, target store.PlayerState) error {
	if current == target {
		return nil
	}
	if err := r.cfg.Store.SetPlayerState(ctx, playerID, target); err != nil {
		return err
	}
	r.log.Info("player state changed",
		zap.Int64("player_id", playerID),
		zap.String("from", current.String()),
		zap.String("to", target.String()))
	return nil
}
