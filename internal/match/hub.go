package match

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/obslog"
)

// Hub routes pushed gateway events to the runner that owns the lobby. One
// hub serves the whole process; runners register on loop start and
// unregister on loop exit.
type Hub struct {
	mu      sync.RWMutex
	byLobby map[string]*Runner
}

func NewHub() *Hub {
	return &Hub{byLobby: make(map[string]*Runner)}
}

func (h *Hub) Register(lobbyID string, r *Runner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byLobby[lobbyID] = r
}

func (h *Hub) Unregister(lobbyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byLobby, lobbyID)
}

// Dispatch hands the event to the owning runner, if any. Events for lobbies
// this process does not referee are dropped.
func (h *Hub) Dispatch(ctx context.Context, ev *bancho.Event) {
	if ev == nil || ev.LobbyID == "" {
		return
	}
	h.mu.RLock()
	r := h.byLobby[ev.LobbyID]
	h.mu.RUnlock()
	if r == nil {
		obslog.L().Debug("event for unmanaged lobby", zap.String("lobby_id", ev.LobbyID))
		return
	}
	r.HandleEvent(ctx, ev)
}
