package match

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/msgcat"
	"github.com/vashgg/refbot/internal/obslog"
	"github.com/vashgg/refbot/internal/store"
)

// Config wires one Runner to its collaborators.
type Config struct {
	MatchID int64

	Store   store.Store
	Session bancho.Session
	Catalog *msgcat.Catalog
	Hub     *Hub
	Logger  *zap.Logger

	// RefereeName is the only identity allowed to close the match via chat.
	RefereeName string
	LobbyPrefix string

	TickInterval time.Duration

	// OnDone fires once after the loop has stopped, with the match id.
	OnDone func(matchID int64)
	// KeepAlive fires every tick while the loop owns the match.
	KeepAlive func(ctx context.Context)
}

// Runner reconciles one match: it owns the fixed-interval tick, compares the
// live lobby against the persisted record and writes the record forward.
// The loop stops itself when the persisted ongoing flag goes false.
type Runner struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	lobby bancho.Lobby

	// noticeSent tracks the one-time "waiting for ready" notice per map.
	noticeMu   sync.Mutex
	noticeSent map[int64]bool
}

func New(cfg Config) *Runner {
	log := cfg.Logger
	if log == nil {
		log = obslog.L()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	return &Runner{
		cfg:        cfg,
		log:        log.With(zap.Int64("match_id", cfg.MatchID)),
		noticeSent: make(map[int64]bool),
	}
}

// AttachLobby binds an already-joined lobby, bypassing ensureLobby. Used by
// tests and by resume paths that joined the lobby elsewhere.
func (r *Runner) AttachLobby(l bancho.Lobby) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobby = l
}

func (r *Runner) currentLobby() bancho.Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lobby
}

// Run drives the reconciliation loop until the match is no longer ongoing or
// the context is cancelled. Lobby creation failure aborts the startup; the
// admission poller retries the match later.
func (r *Runner) Run(ctx context.Context) error {
	snap, err := r.cfg.Store.Snapshot(ctx, r.cfg.MatchID)
	if err != nil {
		return fmt.Errorf("load match %d: %w", r.cfg.MatchID, err)
	}
	if !snap.Ongoing {
		r.log.Info("match not ongoing, loop not started")
		return nil
	}

	if err := r.ensureLobby(ctx, snap); err != nil {
		return fmt.Errorf("lobby for match %d: %w", r.cfg.MatchID, err)
	}

	lobby := r.currentLobby()
	if r.cfg.Hub != nil {
		r.cfg.Hub.Register(lobby.ID(), r)
		defer r.cfg.Hub.Unregister(lobby.ID())
	}
	defer func() {
		if r.cfg.OnDone != nil {
			r.cfg.OnDone(r.cfg.MatchID)
		}
	}()

	r.log.Info("reconciliation loop started", zap.String("lobby_id", lobby.ID()))

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("loop cancelled")
			return ctx.Err()
		case <-ticker.C:
			if r.cfg.KeepAlive != nil {
				r.cfg.KeepAlive(ctx)
			}
			done, err := r.tick(ctx)
			if err != nil {
				// Transient: nothing is written on a failed read, the
				// next tick retries.
				r.log.Warn("tick failed", zap.Error(err))
				continue
			}
			if done {
				r.log.Info("match no longer ongoing, loop stopped")
				return nil
			}
		}
	}
}

// tick is one reconciliation pass. Order matters: progression first (it
// decides stage off the previous tick's map state), then conditional score
// aggregation, then presence and readiness off the current slot occupancy.
func (r *Runner) tick(ctx context.Context) (bool, error) {
	snap, err := r.cfg.Store.Snapshot(ctx, r.cfg.MatchID)
	if err != nil {
		return false, fmt.Errorf("refresh snapshot: %w", err)
	}
	if !snap.Ongoing {
		return true, nil
	}

	lobby := r.currentLobby()
	settings, err := lobby.Settings(ctx)
	if err != nil {
		return false, fmt.Errorf("lobby settings: %w", err)
	}

	cur, err := r.advanceMap(ctx, snap, settings)
	if err != nil {
		r.log.Warn("map progression failed", zap.Error(err))
	}
	if err := r.aggregateScores(ctx, snap, settings, cur); err != nil {
		r.log.Warn("score aggregation failed", zap.Error(err))
	}
	if err := r.checkPresence(ctx, snap, settings); err != nil {
		r.log.Warn("presence check failed", zap.Error(err))
	}
	if err := r.checkReadiness(ctx, snap, settings, cur); err != nil {
		r.log.Warn("readiness check failed", zap.Error(err))
	}
	return false, nil
}

// ensureLobby re-joins the recorded lobby when one exists, otherwise creates
// and configures a fresh one: size, locked slots, invites, referee.
func (r *Runner) ensureLobby(ctx context.Context, snap *store.Snapshot) error {
	if snap.LobbyID != "" {
		lobby, err := r.cfg.Session.JoinLobby(ctx, snap.LobbyID)
		if err == nil {
			r.AttachLobby(lobby)
			return nil
		}
		r.log.Warn("rejoin failed, creating a new lobby",
			zap.String("lobby_id", snap.LobbyID), zap.Error(err))
	}

	if len(snap.Participants) < 2 {
		return fmt.Errorf("match has %d participants, need 2", len(snap.Participants))
	}

	name := r.lobbyName(snap)
	lobby, err := r.cfg.Session.CreateLobby(ctx, name)
	if err != nil {
		return fmt.Errorf("create lobby: %w", err)
	}
	if err := r.cfg.Store.SetLobbyID(ctx, snap.ID, lobby.ID()); err != nil {
		return fmt.Errorf("record lobby id: %w", err)
	}

	players := snap.Players()
	if err := lobby.SetSize(ctx, 2, 3, len(players)); err != nil {
		r.log.Warn("set lobby size failed", zap.Error(err))
	}
	if err := lobby.LockSlots(ctx); err != nil {
		r.log.Warn("lock slots failed", zap.Error(err))
	}
	for _, p := range players {
		if err := lobby.Invite(ctx, p.PlatformID); err != nil {
			r.log.Warn("invite failed", zap.Int64("platform_id", p.PlatformID), zap.Error(err))
			continue
		}
		r.log.Info("invited player", zap.String("player", p.Name), zap.Int64("platform_id", p.PlatformID))
	}
	if r.cfg.RefereeName != "" {
		if err := lobby.AddRef(ctx, r.cfg.RefereeName); err != nil {
			r.log.Warn("add referee failed", zap.Error(err))
		}
	}

	r.AttachLobby(lobby)
	r.log.Info("lobby created", zap.String("lobby_id", lobby.ID()), zap.String("name", name))
	return nil
}

func (r *Runner) lobbyName(snap *store.Snapshot) string {
	data := map[string]string{
		"Prefix": r.cfg.LobbyPrefix,
		"TeamA":  snap.Participants[0].TeamName,
		"TeamB":  snap.Participants[1].TeamName,
	}
	if r.cfg.Catalog != nil {
		if s, err := r.cfg.Catalog.Render("lobby.name", data); err == nil {
			return s
		}
	}
	return fmt.Sprintf("%s: (%s) vs (%s)", r.cfg.LobbyPrefix,
		snap.Participants[0].TeamName, snap.Participants[1].TeamName)
}

func (r *Runner) render(key string, data any, fallback string) string {
	if r.cfg.Catalog != nil {
		if s, err := r.cfg.Catalog.Render(key, data); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallback
}
