package bancho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers (API keys etc).
type HeaderProvider func() map[string]string

// Client talks to the bancho gateway's REST surface. The gateway wraps the
// IRC-side multiplayer protocol behind plain JSON endpoints.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateLobby opens a new multiplayer lobby and returns a handle bound to it.
func (c *Client) CreateLobby(ctx context.Context, name string) (Lobby, error) {
	var resp createLobbyResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/lobbies", createLobbyRequest{Name: name}, &resp, true); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, errors.New("gateway returned empty lobby id")
	}
	return &apiLobby{c: c, id: resp.ID}, nil
}

// JoinLobby re-attaches to an existing lobby, e.g. after a process restart.
func (c *Client) JoinLobby(ctx context.Context, lobbyID string) (Lobby, error) {
	if err := c.doJSON(ctx, fasthttp.MethodPost, c.lobbyPath(lobbyID, "/join"), nil, nil, false); err != nil {
		return nil, err
	}
	return &apiLobby{c: c, id: lobbyID}, nil
}

// SendMessage posts a text notice into a lobby channel by id.
func (c *Client) SendMessage(ctx context.Context, lobbyID, text string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, c.lobbyPath(lobbyID, "/messages"), messageRequest{Text: text}, nil, false)
}

// Invite asks the gateway to invite an identity into a lobby by id.
func (c *Client) Invite(ctx context.Context, lobbyID string, platformID int64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, c.lobbyPath(lobbyID, "/invite"), inviteRequest{PlatformID: platformID}, nil, false)
}

// Whois probes whether an identity is currently known to the service.
func (c *Client) Whois(ctx context.Context, platformID int64) error {
	return c.doJSON(ctx, fasthttp.MethodGet, fmt.Sprintf("/users/%d", platformID), nil, nil, false)
}

func (c *Client) lobbyPath(lobbyID, suffix string) string {
	return "/lobbies/" + url.PathEscape(lobbyID) + suffix
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	reqURL := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(reqURL)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("bancho gateway error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
