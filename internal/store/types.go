package store

import (
	"time"
)

// PlayerState tracks one competitor's presence in the live lobby. Values are
// persisted as-is, so the numeric order is part of the schema contract.
type PlayerState int

const (
	StateUnset     PlayerState = 0
	StateNotJoined PlayerState = 1
	StateAbsent    PlayerState = 2 // known to the service, not in the lobby
	StatePresent   PlayerState = 3
	StateReady     PlayerState = 4
	StateInGame    PlayerState = 5
)

func (s PlayerState) String() string {
	switch s {
	case StateNotJoined:
		return "not_joined"
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	case StateReady:
		return "ready"
	case StateInGame:
		return "in_game"
	default:
		return "unset"
	}
}

// MapStatus is the per-map progression stage. Finished is terminal.
type MapStatus string

const (
	MapWaiting  MapStatus = "waiting"
	MapPlaying  MapStatus = "playing"
	MapFinished MapStatus = "finished"
)

type Match struct {
	ID      int64
	Ongoing bool
	RoundID int64
	LobbyID string // empty until a lobby has been created
}

// Round holds the contest parameters. Immutable once the match starts.
type Round struct {
	ID        int64
	BestOf    int
	MapPoolID int64
}

type Player struct {
	ID            int64
	Name          string
	PlatformID    int64 // external identity on the game platform
	State         PlayerState
	ParticipantID int64
}

// Participant is one competing side of a match.
type Participant struct {
	ID       int64
	TeamName string
	Players  []Player
}

type MatchMap struct {
	ID            int64
	MatchID       int64
	CreatedAt     time.Time
	Status        MapStatus
	MapExternalID int64
	Mods          string
	Aggregated    bool
}

type Score struct {
	ID         int64
	MatchMapID int64
	PlayerID   int64
	PlatformID int64
	Value      int64
	Failed     bool
	CreatedAt  time.Time
}

// QueueEntry is a FIFO ticket. Position 1 is next in line; nil means the
// entry has been consumed.
type QueueEntry struct {
	MatchID  int64
	Position *int
}

// Snapshot is the flattened read model of one match: everything the
// reconciliation loop needs, projected out of the nested schema in one go.
type Snapshot struct {
	Match
	Round        Round
	Participants []Participant
	Maps         []MatchMap // ascending by CreatedAt
}

// CurrentMap returns the map with the latest creation timestamp, or nil when
// no map has been scheduled yet.
func (s *Snapshot) CurrentMap() *MatchMap {
	if s == nil || len(s.Maps) == 0 {
		return nil
	}
	cur := &s.Maps[0]
	for i := range s.Maps {
		if s.Maps[i].CreatedAt.After(cur.CreatedAt) {
			cur = &s.Maps[i]
		}
	}
	return cur
}

// Players flattens both participants' rosters.
func (s *Snapshot) Players() []Player {
	if s == nil {
		return nil
	}
	var out []Player
	for _, p := range s.Participants {
		out = append(out, p.Players...)
	}
	return out
}

// PlayerByPlatform resolves a roster entry by external identity.
func (s *Snapshot) PlayerByPlatform(platformID int64) *Player {
	if s == nil {
		return nil
	}
	for pi := range s.Participants {
		for i := range s.Participants[pi].Players {
			if s.Participants[pi].Players[i].PlatformID == platformID {
				return &s.Participants[pi].Players[i]
			}
		}
	}
	return nil
}

// ParticipantOf maps a roster player id back to its participant id.
func (s *Snapshot) ParticipantOf(playerID int64) (int64, bool) {
	if s == nil {
		return 0, false
	}
	for _, p := range s.Participants {
		for _, pl := range p.Players {
			if pl.ID == playerID {
				return p.ID, true
			}
		}
	}
	return 0, false
}
