package match

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

// terminateCommand is the only chat command the bot honours.
const terminateCommand = "close"

// HandleEvent applies one pushed lifecycle notification. Every branch lands
// on the same idempotent transitions the tick performs, so an event racing a
// tick for the same condition converges on one end state.
func (r *Runner) HandleEvent(ctx context.Context, ev *bancho.Event) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case bancho.EventPlayerJoined:
		r.applyPresenceEvent(ctx, ev.PlatformID, store.StatePresent)
	case bancho.EventPlayerLeft:
		r.applyPresenceEvent(ctx, ev.PlatformID, store.StateAbsent)
	case bancho.EventMatchStarted:
		r.applyMatchStarted(ctx)
	case bancho.EventAllPlayersReady:
		if err := r.currentLobby().Start(ctx); err != nil {
			r.log.Warn("start on all-ready failed", zap.Error(err))
		}
	case bancho.EventMatchFinished, bancho.EventMatchAborted:
		// Run a full pass immediately instead of waiting out the tick:
		// progression flips the map to finished and aggregation follows.
		if _, err := r.tick(ctx); err != nil {
			r.log.Warn("event-driven pass failed", zap.String("event", string(ev.Kind)), zap.Error(err))
		}
	case bancho.EventMessage:
		r.handleMessage(ctx, ev)
	default:
		r.log.Debug("unhandled event", zap.String("kind", string(ev.Kind)))
	}
}

func (r *Runner) applyPresenceEvent(ctx context.Context, platformID int64, target store.PlayerState) {
	snap, err := r.cfg.Store.Snapshot(ctx, r.cfg.MatchID)
	if err != nil {
		r.log.Warn("snapshot for presence event failed", zap.Error(err))
		return
	}
	p := snap.PlayerByPlatform(platformID)
	if p == nil {
		r.log.Warn("presence event for unknown identity", zap.Int64("platform_id", platformID))
		return
	}
	if err := r.transitionPlayer(ctx, p.ID, p.State, target); err != nil {
		r.log.Warn("presence event write failed", zap.Int64("player_id", p.ID), zap.Error(err))
	}
}

func (r *Runner) applyMatchStarted(ctx context.Context) {
	snap, err := r.cfg.Store.Snapshot(ctx, r.cfg.MatchID)
	if err != nil {
		r.log.Warn("snapshot for start event failed", zap.Error(err))
		return
	}
	cur := snap.CurrentMap()
	if cur == nil || cur.Status != store.MapWaiting {
		return // tick already moved the stage, nothing to re-apply
	}
	if err := r.cfg.Store.SetAllPlayerStates(ctx, snap.ID, store.StateInGame); err != nil {
		r.log.Warn("set players in-game failed", zap.Error(err))
		return
	}
	if err := r.cfg.Store.SetMapStatus(ctx, cur.ID, store.MapPlaying); err != nil {
		r.log.Warn("mark map playing failed", zap.Error(err))
		return
	}
	r.log.Info("map started (pushed event)", zap.Int64("map_id", cur.ID))
}

// handleMessage processes lobby chat. The termination command is authorized
// to the designated referee only; anyone else is ignored without a reply.
func (r *Runner) handleMessage(ctx context.Context, ev *bancho.Event) {
	if !strings.HasPrefix(strings.TrimSpace(ev.Text), terminateCommand) {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(ev.From), r.cfg.RefereeName) {
		r.log.Debug("termination command from unauthorized sender",
			zap.String("from", ev.From))
		return
	}

	applied, err := r.cfg.Store.FinishMatch(ctx, r.cfg.MatchID)
	if err != nil {
		r.log.Warn("terminate: finish match failed", zap.Error(err))
		return
	}
	if !applied {
		return // already terminated by another path
	}

	r.log.Info("match terminated by referee", zap.String("from", ev.From))

	lobby := r.currentLobby()
	text := r.render("match.closed", nil, "The match has been closed by the referee.")
	if err := lobby.SendMessage(ctx, text); err != nil {
		r.log.Warn("close notice failed", zap.Error(err))
	}
	if err := lobby.Close(ctx); err != nil {
		r.log.Warn("lobby close failed", zap.Error(err))
	}
	if err := r.cfg.Store.SetAllPlayerStates(ctx, r.cfg.MatchID, store.StateNotJoined); err != nil {
		r.log.Warn("terminal player states failed", zap.Error(err))
	}
}
