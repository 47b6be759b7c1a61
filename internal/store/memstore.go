package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store used by tests and DB-less development runs.
// It mirrors the Postgres semantics, including the guarded once-only writes.
type Memory struct {
	mu sync.RWMutex

	matches map[int64]*Snapshot
	scores  map[int64]*Score // by score id
	queue   map[int64]*int   // match id → position (nil = consumed)

	// stateWrites counts SetPlayerState calls per player so tests can
	// assert that idempotent paths do not re-write.
	stateWrites map[int64]int
}

func NewMemory() *Memory {
	return &Memory{
		matches:     make(map[int64]*Snapshot),
		scores:      make(map[int64]*Score),
		queue:       make(map[int64]*int),
		stateWrites: make(map[int64]int),
	}
}

// SeedMatch registers a match snapshot as the persisted truth.
func (m *Memory) SeedMatch(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneSnapshot(snap)
	m.matches[cp.ID] = cp
}

// SeedScore registers a persisted score row.
func (m *Memory) SeedScore(s Score) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.scores[s.ID] = &cp
}

// SeedQueue places a match in the queue at the given position.
func (m *Memory) SeedQueue(matchID int64, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := position
	m.queue[matchID] = &p
}

func (m *Memory) Snapshot(ctx context.Context, matchID int64) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (m *Memory) SetLobbyID(ctx context.Context, matchID int64, lobbyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.matches[matchID]; ok {
		snap.LobbyID = lobbyID
	}
	return nil
}

func (m *Memory) SetMatchOngoing(ctx context.Context, matchID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.matches[matchID]; ok {
		snap.Ongoing = true
	}
	return nil
}

func (m *Memory) FinishMatch(ctx context.Context, matchID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.matches[matchID]
	if !ok || !snap.Ongoing {
		return false, nil
	}
	snap.Ongoing = false
	return true, nil
}

func (m *Memory) SetPlayerState(ctx context.Context, playerID int64, state PlayerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.matches {
		for pi := range snap.Participants {
			for i := range snap.Participants[pi].Players {
				if snap.Participants[pi].Players[i].ID == playerID {
					snap.Participants[pi].Players[i].State = state
					m.stateWrites[playerID]++
					return nil
				}
			}
		}
	}
	return ErrNotFound
}

func (m *Memory) SetAllPlayerStates(ctx context.Context, matchID int64, state PlayerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.matches[matchID]
	if !ok {
		return ErrNotFound
	}
	for pi := range snap.Participants {
		for i := range snap.Participants[pi].Players {
			snap.Participants[pi].Players[i].State = state
		}
	}
	return nil
}

func (m *Memory) SetMapStatus(ctx context.Context, mapID int64, status MapStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm := m.findMap(mapID); mm != nil {
		mm.Status = status
		return nil
	}
	return ErrNotFound
}

func (m *Memory) MarkMapAggregated(ctx context.Context, mapID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm := m.findMap(mapID)
	if mm == nil || mm.Aggregated {
		return false, nil
	}
	mm.Aggregated = true
	return true, nil
}

func (m *Memory) findMap(mapID int64) *MatchMap {
	for _, snap := range m.matches {
		for i := range snap.Maps {
			if snap.Maps[i].ID == mapID {
				return &snap.Maps[i]
			}
		}
	}
	return nil
}

func (m *Memory) ScoresForMap(ctx context.Context, mapID int64) ([]Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Score
	for _, s := range m.scores {
		if s.MatchMapID == mapID {
			out = append(out, *s)
		}
	}
	sortScores(out)
	return out, nil
}

func (m *Memory) ScoresForMatch(ctx context.Context, matchID int64) ([]Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	mapIDs := make(map[int64]bool, len(snap.Maps))
	for _, mm := range snap.Maps {
		mapIDs[mm.ID] = true
	}
	var out []Score
	for _, s := range m.scores {
		if mapIDs[s.MatchMapID] {
			out = append(out, *s)
		}
	}
	sortScores(out)
	return out, nil
}

func sortScores(out []Score) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (m *Memory) UpdateScore(ctx context.Context, scoreID int64, value int64, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[scoreID]
	if !ok {
		return ErrNotFound
	}
	s.Value = value
	s.Failed = failed
	return nil
}

func (m *Memory) CountOngoing(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, snap := range m.matches {
		if snap.Ongoing {
			n++
		}
	}
	return n, nil
}

func (m *Memory) OngoingMatchIDs(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for id, snap := range m.matches {
		if snap.Ongoing {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) HeadOfQueue(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, pos := range m.queue {
		if pos != nil && *pos == 1 {
			return id, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) ConsumeQueuePosition(ctx context.Context, matchID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.queue[matchID]
	if !ok || pos == nil || *pos != 1 {
		return false, nil
	}
	m.queue[matchID] = nil
	return true, nil
}

func (m *Memory) CompactQueue(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pos := range m.queue {
		if pos != nil && *pos > 0 {
			p := *pos - 1
			m.queue[id] = &p
		}
	}
	return nil
}

// Test inspection helpers.

// PlayerStateOf reads a player's current persisted state.
func (m *Memory) PlayerStateOf(playerID int64) PlayerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, snap := range m.matches {
		for _, p := range snap.Participants {
			for _, pl := range p.Players {
				if pl.ID == playerID {
					return pl.State
				}
			}
		}
	}
	return StateUnset
}

// StateWrites reports how many SetPlayerState calls hit the given player.
func (m *Memory) StateWrites(playerID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateWrites[playerID]
}

// ScoreOf reads a persisted score row back.
func (m *Memory) ScoreOf(scoreID int64) (Score, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[scoreID]
	if !ok {
		return Score{}, false
	}
	return *s, true
}

// QueuePositions returns the live position of every still-queued entry.
func (m *Memory) QueuePositions() map[int64]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]int)
	for id, pos := range m.queue {
		if pos != nil {
			out[id] = *pos
		}
	}
	return out
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	cp := *snap
	cp.Participants = make([]Participant, len(snap.Participants))
	for i, p := range snap.Participants {
		cp.Participants[i] = p
		cp.Participants[i].Players = append([]Player(nil), p.Players...)
	}
	cp.Maps = append([]MatchMap(nil), snap.Maps...)
	return &cp
}
