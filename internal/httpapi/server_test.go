package httpapi

import (
	"context"
	"errors"
	"testing"

	"github.com/valyala/fasthttp"
)

type fakeAdmitter struct {
	ids []int64
	err error
}

func (f *fakeAdmitter) StartMatch(ctx context.Context, matchID int64) error {
	f.ids = append(f.ids, matchID)
	return f.err
}

type fakeMessenger struct {
	sent    map[string][]string
	invited map[string][]int64
	err     error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{sent: make(map[string][]string), invited: make(map[string][]int64)}
}

func (f *fakeMessenger) SendMessage(ctx context.Context, lobbyID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent[lobbyID] = append(f.sent[lobbyID], text)
	return nil
}

func (f *fakeMessenger) Invite(ctx context.Context, lobbyID string, platformID int64) error {
	if f.err != nil {
		return f.err
	}
	f.invited[lobbyID] = append(f.invited[lobbyID], platformID)
	return nil
}

func doRequest(t *testing.T, s *Server, method, path, body string) *fasthttp.RequestCtx {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	s.Handle(&ctx)
	return &ctx
}

func TestCreateMatchAccepted(t *testing.T) {
	admit := &fakeAdmitter{}
	s := NewServer(admit, newFakeMessenger())

	ctx := doRequest(t, s, "POST", "/create-match", `{"id": 42}`)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusAccepted {
		t.Fatalf("status = %d, want 202", got)
	}
	if len(admit.ids) != 1 || admit.ids[0] != 42 {
		t.Fatalf("admitted ids = %v, want [42]", admit.ids)
	}
}

func TestCreateMatchRejectsBadBody(t *testing.T) {
	admit := &fakeAdmitter{}
	s := NewServer(admit, newFakeMessenger())

	for _, body := range []string{``, `not json`, `{"id": 0}`} {
		ctx := doRequest(t, s, "POST", "/create-match", body)
		if got := ctx.Response.StatusCode(); got != fasthttp.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, got)
		}
	}
	if len(admit.ids) != 0 {
		t.Fatalf("bad requests reached the admitter: %v", admit.ids)
	}
}

func TestCreateMatchSurfacesAdmitterFailure(t *testing.T) {
	admit := &fakeAdmitter{err: errors.New("store down")}
	s := NewServer(admit, newFakeMessenger())

	ctx := doRequest(t, s, "POST", "/create-match", `{"id": 42}`)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusBadGateway {
		t.Fatalf("status = %d, want 502", got)
	}
}

func TestSendMessagesFansOut(t *testing.T) {
	msg := newFakeMessenger()
	s := NewServer(&fakeAdmitter{}, msg)

	ctx := doRequest(t, s, "POST", "/send-messages",
		`{"channelId": "#mp_1", "messages": ["one", "two"]}`)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusAccepted {
		t.Fatalf("status = %d, want 202", got)
	}
	if got := msg.sent["#mp_1"]; len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("delivered = %v, want [one two] in order", got)
	}
}

func TestInvitePlayer(t *testing.T) {
	msg := newFakeMessenger()
	s := NewServer(&fakeAdmitter{}, msg)

	ctx := doRequest(t, s, "POST", "/invite-player",
		`{"channelId": "#mp_1", "playerPlatformId": 9001}`)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusAccepted {
		t.Fatalf("status = %d, want 202", got)
	}
	if got := msg.invited["#mp_1"]; len(got) != 1 || got[0] != 9001 {
		t.Fatalf("invited = %v, want [9001]", got)
	}
}

func TestMethodAndPathGuards(t *testing.T) {
	s := NewServer(&fakeAdmitter{}, newFakeMessenger())

	ctx := doRequest(t, s, "GET", "/create-match", "")
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", got)
	}
	ctx = doRequest(t, s, "POST", "/no-such-route", `{}`)
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", got)
	}
}
