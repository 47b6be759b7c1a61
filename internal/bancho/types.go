package bancho

// EventKind enumerates the lifecycle notifications pushed by the gateway.
type EventKind string

const (
	EventPlayerJoined    EventKind = "playerJoined"
	EventPlayerLeft      EventKind = "playerLeft"
	EventMatchStarted    EventKind = "matchStarted"
	EventAllPlayersReady EventKind = "allPlayersReady"
	EventMatchFinished   EventKind = "matchFinished"
	EventMatchAborted    EventKind = "matchAborted"
	EventMessage         EventKind = "message"
)

// Event is one pushed notification. Delivery is at-least-once; consumers
// must treat duplicates as no-ops.
type Event struct {
	Kind       EventKind `json:"kind"`
	LobbyID    string    `json:"lobbyId"`
	PlatformID int64     `json:"platformId,omitempty"` // join/leave events
	From       string    `json:"from,omitempty"`       // message sender
	Text       string    `json:"text,omitempty"`       // message body
}

// Slot is one occupied lobby slot.
type Slot struct {
	PlatformID int64 `json:"platformId"`
	Ready      bool  `json:"ready"`
}

// SlotScore is one live per-map score entry.
type SlotScore struct {
	PlatformID int64 `json:"platformId"`
	Score      int64 `json:"score"`
	Passed     bool  `json:"passed"`
}

// Settings is the lobby state snapshot read each tick.
type Settings struct {
	InProgress bool        `json:"inProgress"`
	MapID      int64       `json:"mapId"`
	Mods       string      `json:"mods"`
	Slots      []Slot      `json:"slots"`
	Scores     []SlotScore `json:"scores"`
}

// SlotFor finds the slot held by an identity.
func (s *Settings) SlotFor(platformID int64) (Slot, bool) {
	if s == nil {
		return Slot{}, false
	}
	for _, slot := range s.Slots {
		if slot.PlatformID == platformID {
			return slot, true
		}
	}
	return Slot{}, false
}

// AllReady reports whether every occupied slot signalled ready.
func (s *Settings) AllReady() bool {
	if s == nil || len(s.Slots) == 0 {
		return false
	}
	for _, slot := range s.Slots {
		if !slot.Ready {
			return false
		}
	}
	return true
}

// ScoreFor finds the live score entry for an identity.
func (s *Settings) ScoreFor(platformID int64) (SlotScore, bool) {
	if s == nil {
		return SlotScore{}, false
	}
	for _, sc := range s.Scores {
		if sc.PlatformID == platformID {
			return sc, true
		}
	}
	return SlotScore{}, false
}

type createLobbyRequest struct {
	Name string `json:"name"`
}

type createLobbyResponse struct {
	ID string `json:"id"`
}

type inviteRequest struct {
	PlatformID int64 `json:"platformId"`
}

type refRequest struct {
	Name string `json:"name"`
}

type sizeRequest struct {
	TeamMode  int `json:"teamMode"`
	ScoreMode int `json:"scoreMode"`
	Size      int `json:"size"`
}

type mapRequest struct {
	MapID int64 `json:"mapId"`
}

type modsRequest struct {
	Mods    string `json:"mods"`
	Freemod bool   `json:"freemod"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// WebSocketState mirrors the connection lifecycle of the event stream.
type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)
