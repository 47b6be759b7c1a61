package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a match, map or queue entry does not exist.
	ErrNotFound = errors.New("store: not found")
)

// Store is the persisted source of truth for matches. All mutating calls are
// value-setting and idempotent; the two guarded calls (FinishMatch,
// MarkMapAggregated) report whether this caller won the write so once-only
// effects can be tied to them.
type Store interface {
	// Snapshot reads one match with round, rosters and maps flattened into
	// the typed read model.
	Snapshot(ctx context.Context, matchID int64) (*Snapshot, error)

	SetLobbyID(ctx context.Context, matchID int64, lobbyID string) error

	// SetMatchOngoing flips a match to ongoing on promotion.
	SetMatchOngoing(ctx context.Context, matchID int64) error

	// FinishMatch flips ongoing to false. Returns true only for the caller
	// whose write actually applied; the flag flips exactly once.
	FinishMatch(ctx context.Context, matchID int64) (bool, error)

	SetPlayerState(ctx context.Context, playerID int64, state PlayerState) error
	SetAllPlayerStates(ctx context.Context, matchID int64, state PlayerState) error

	SetMapStatus(ctx context.Context, mapID int64, status MapStatus) error

	// MarkMapAggregated guards score aggregation: true means this caller
	// owns the one aggregation pass for the map.
	MarkMapAggregated(ctx context.Context, mapID int64) (bool, error)

	// ScoresForMap returns persisted score rows for one map in creation
	// order, each resolved to the player's external identity.
	ScoresForMap(ctx context.Context, mapID int64) ([]Score, error)
	// ScoresForMatch returns every score row of the match, for win tallies.
	ScoresForMatch(ctx context.Context, matchID int64) ([]Score, error)
	UpdateScore(ctx context.Context, scoreID int64, value int64, failed bool) error

	CountOngoing(ctx context.Context) (int, error)
	OngoingMatchIDs(ctx context.Context) ([]int64, error)

	// HeadOfQueue returns the match id at queue position 1, or ErrNotFound.
	HeadOfQueue(ctx context.Context) (int64, error)
	// ConsumeQueuePosition clears the entry's position. True only when the
	// entry was actually at position 1.
	ConsumeQueuePosition(ctx context.Context, matchID int64) (bool, error)
	// CompactQueue shifts every remaining positive position down by one.
	CompactQueue(ctx context.Context) error
}
