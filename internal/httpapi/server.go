package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/obslog"
)

// Admitter starts (or resumes) one match's reconciliation loop.
type Admitter interface {
	StartMatch(ctx context.Context, matchID int64) error
}

// Messenger addresses a lobby channel directly, outside any loop.
type Messenger interface {
	SendMessage(ctx context.Context, lobbyID, text string) error
	Invite(ctx context.Context, lobbyID string, platformID int64) error
}

// Server exposes the thin control surface: create/resume a match, push
// messages into a channel, invite a player. Everything substantial happens
// in the reconciliation core; these are pass-throughs.
type Server struct {
	admit Admitter
	msg   Messenger
	log   *zap.Logger
	srv   *fasthttp.Server
}

func NewServer(admit Admitter, msg Messenger) *Server {
	s := &Server{admit: admit, msg: msg, log: obslog.L().Named("http")}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Name:         "refbot",
	}
	return s
}

func (s *Server) Listen(addr string) error {
	s.log.Info("control api listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

type createMatchRequest struct {
	ID int64 `json:"id"`
}

type sendMessagesRequest struct {
	ChannelID string   `json:"channelId"`
	Messages  []string `json:"messages"`
}

type invitePlayerRequest struct {
	ChannelID        string `json:"channelId"`
	PlayerPlatformID int64  `json:"playerPlatformId"`
}

// Handle is the fasthttp request handler; exported so tests can drive it
// without a listener.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	reqID := uuid.NewString()
	log := s.log.With(zap.String("request_id", reqID), zap.ByteString("path", ctx.Path()))

	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	switch string(ctx.Path()) {
	case "/create-match":
		var req createMatchRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.ID == 0 {
			badRequest(ctx, log, err)
			return
		}
		if err := s.admit.StartMatch(ctx, req.ID); err != nil {
			log.Warn("create-match failed", zap.Int64("match_id", req.ID), zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		log.Info("match admitted", zap.Int64("match_id", req.ID))
		ctx.SetStatusCode(fasthttp.StatusAccepted)

	case "/send-messages":
		var req sendMessagesRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.ChannelID == "" {
			badRequest(ctx, log, err)
			return
		}
		for _, m := range req.Messages {
			if err := s.msg.SendMessage(ctx, req.ChannelID, m); err != nil {
				log.Warn("send failed", zap.String("channel", req.ChannelID), zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusBadGateway)
				return
			}
		}
		ctx.SetStatusCode(fasthttp.StatusAccepted)

	case "/invite-player":
		var req invitePlayerRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.ChannelID == "" || req.PlayerPlatformID == 0 {
			badRequest(ctx, log, err)
			return
		}
		if err := s.msg.Invite(ctx, req.ChannelID, req.PlayerPlatformID); err != nil {
			log.Warn("invite failed", zap.String("channel", req.ChannelID), zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusAccepted)

	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func badRequest(ctx *fasthttp.RequestCtx, log *zap.Logger, err error) {
	log.Warn("bad request", zap.Error(err))
	ctx.SetStatusCode(fasthttp.StatusBadRequest)
}
