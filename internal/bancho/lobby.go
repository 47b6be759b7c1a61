package bancho

import (
	"context"

	"github.com/valyala/fasthttp"
)

// Session is the connection-level surface the reconciliation core needs:
// create or re-join a lobby, plus the identity probe.
type Session interface {
	CreateLobby(ctx context.Context, name string) (Lobby, error)
	JoinLobby(ctx context.Context, lobbyID string) (Lobby, error)
	Whois(ctx context.Context, platformID int64) error
}

// Lobby is one live multiplayer room. All calls are remote and may fail
// transiently; callers retry on the next tick.
type Lobby interface {
	ID() string
	Invite(ctx context.Context, platformID int64) error
	AddRef(ctx context.Context, name string) error
	LockSlots(ctx context.Context) error
	SetSize(ctx context.Context, teamMode, scoreMode, size int) error
	SetMap(ctx context.Context, mapID int64) error
	SetMods(ctx context.Context, mods string, freemod bool) error
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	Settings(ctx context.Context) (*Settings, error)
}

var _ Session = (*Client)(nil)

type apiLobby struct {
	c  *Client
	id string
}

func (l *apiLobby) ID() string { return l.id }

func (l *apiLobby) Invite(ctx context.Context, platformID int64) error {
	return l.c.Invite(ctx, l.id, platformID)
}

func (l *apiLobby) AddRef(ctx context.Context, name string) error {
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/refs"), refRequest{Name: name}, nil, false)
}

func (l *apiLobby) LockSlots(ctx context.Context) error {
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/locks"), nil, nil, false)
}

func (l *apiLobby) SetSize(ctx context.Context, teamMode, scoreMode, size int) error {
	req := sizeRequest{TeamMode: teamMode, ScoreMode: scoreMode, Size: size}
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/settings"), req, nil, false)
}

func (l *apiLobby) SetMap(ctx context.Context, mapID int64) error {
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/map"), mapRequest{MapID: mapID}, nil, false)
}

func (l *apiLobby) SetMods(ctx context.Context, mods string, freemod bool) error {
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/mods"), modsRequest{Mods: mods, Freemod: freemod}, nil, false)
}

func (l *apiLobby) Start(ctx context.Context) error {
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/start"), nil, nil, false)
}

func (l *apiLobby) Close(ctx context.Context) error {
	return l.c.doJSON(ctx, fasthttp.MethodPost, l.c.lobbyPath(l.id, "/close"), nil, nil, false)
}

func (l *apiLobby) SendMessage(ctx context.Context, text string) error {
	return l.c.SendMessage(ctx, l.id, text)
}

func (l *apiLobby) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := l.c.doJSON(ctx, fasthttp.MethodGet, l.c.lobbyPath(l.id, "/state"), nil, &s, false); err != nil {
		return nil, err
	}
	return &s, nil
}
