package bancho

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FakeSession is an in-memory Session used by tests and DB-less development
// runs. Lobbies it creates are FakeLobby instances that record calls.
type FakeSession struct {
	mu      sync.Mutex
	nextID  int
	Lobbies map[string]*FakeLobby

	// Known marks identities for which Whois succeeds.
	Known map[int64]bool
}

func NewFakeSession() *FakeSession {
	return &FakeSession{
		Lobbies: make(map[string]*FakeLobby),
		Known:   make(map[int64]bool),
	}
}

func (s *FakeSession) CreateLobby(ctx context.Context, name string) (Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("#mp_%d", s.nextID)
	l := NewFakeLobby(id)
	l.Name = name
	s.Lobbies[id] = l
	return l, nil
}

func (s *FakeSession) JoinLobby(ctx context.Context, lobbyID string) (Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.Lobbies[lobbyID]; ok {
		return l, nil
	}
	return nil, errors.New("no such lobby")
}

func (s *FakeSession) Whois(ctx context.Context, platformID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Known[platformID] {
		return nil
	}
	return errors.New("unknown user")
}

// FakeLobby records every lobby mutation and serves a scripted Settings
// snapshot.
type FakeLobby struct {
	mu sync.Mutex

	id   string
	Name string

	settings    Settings
	settingsErr error

	Invited  []int64
	Refs     []string
	Messages []string
	MapSet   int64
	ModsSet  string
	Locked   bool
	Sized    bool
	StartedN int
	ClosedN  int
}

func NewFakeLobby(id string) *FakeLobby {
	return &FakeLobby{id: id}
}

func (l *FakeLobby) ID() string { return l.id }

// Script replaces the settings snapshot served to the next callers.
func (l *FakeLobby) Script(s Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

// ScriptError makes Settings fail until Script is called again.
func (l *FakeLobby) ScriptError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settingsErr = err
}

func (l *FakeLobby) Invite(ctx context.Context, platformID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Invited = append(l.Invited, platformID)
	return nil
}

func (l *FakeLobby) AddRef(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Refs = append(l.Refs, name)
	return nil
}

func (l *FakeLobby) LockSlots(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Locked = true
	return nil
}

func (l *FakeLobby) SetSize(ctx context.Context, teamMode, scoreMode, size int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Sized = true
	return nil
}

func (l *FakeLobby) SetMap(ctx context.Context, mapID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MapSet = mapID
	l.settings.MapID = mapID
	return nil
}

func (l *FakeLobby) SetMods(ctx context.Context, mods string, freemod bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ModsSet = mods
	l.settings.Mods = mods
	return nil
}

func (l *FakeLobby) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StartedN++
	return nil
}

func (l *FakeLobby) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ClosedN++
	return nil
}

func (l *FakeLobby) SendMessage(ctx context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, text)
	return nil
}

func (l *FakeLobby) Settings(ctx context.Context) (*Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settingsErr != nil {
		return nil, l.settingsErr
	}
	cp := l.settings
	cp.Slots = append([]Slot(nil), l.settings.Slots...)
	cp.Scores = append([]SlotScore(nil), l.settings.Scores...)
	return &cp, nil
}

var (
	_ Session = (*FakeSession)(nil)
	_ Lobby   = (*FakeLobby)(nil)
)
