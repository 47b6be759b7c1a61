package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/admission"
	"github.com/vashgg/refbot/internal/bancho"
	appcfg "github.com/vashgg/refbot/internal/config"
	"github.com/vashgg/refbot/internal/httpapi"
	"github.com/vashgg/refbot/internal/match"
	"github.com/vashgg/refbot/internal/msgcat"
	"github.com/vashgg/refbot/internal/obslog"
	"github.com/vashgg/refbot/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	catalog, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		logger.Fatal("message catalog init failed", zap.Error(err))
	}

	st, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	leases, err := admission.NewLeases(cfg.RedisURL)
	if err != nil {
		logger.Fatal("lease store init failed", zap.Error(err))
	}

	client := bancho.NewClient(cfg.BanchoBaseURL)
	ws := bancho.NewWebSocket(cfg.BanchoWSURL, 5, time.Second)
	ws.OnStateChange(func(state bancho.WebSocketState) {
		logger.Info("event stream state", zap.String("state", string(state)))
	})

	hub := match.NewHub()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startLoop := func(ctx context.Context, matchID int64, keepAlive func(ctx context.Context)) error {
		runner := match.New(match.Config{
			MatchID:      matchID,
			Store:        st,
			Session:      client,
			Catalog:      catalog,
			Hub:          hub,
			Logger:       logger,
			RefereeName:  cfg.RefereeName,
			LobbyPrefix:  cfg.LobbyPrefix,
			TickInterval: cfg.TickInterval,
			KeepAlive:    keepAlive,
		})
		return runner.Run(ctx)
	}

	controller := admission.NewController(st, leases, cfg.MaxOngoingMatches, cfg.QueueInterval, startLoop)

	ws.OnEvent(func(ev *bancho.Event) {
		// Event handlers touch the network; keep the read loop free.
		go hub.Dispatch(rootCtx, ev)
	})

	cctx, ccancel := context.WithTimeout(rootCtx, 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		ccancel()
		logger.Fatal("event stream connect failed", zap.Error(err))
	}
	ccancel()

	if err := controller.Start(rootCtx); err != nil {
		logger.Fatal("admission controller start failed", zap.Error(err))
	}

	api := httpapi.NewServer(controller, client)
	go func() {
		if err := api.Listen(cfg.HTTPListenAddr); err != nil {
			logger.Fatal("http listen failed", zap.Error(err))
		}
	}()

	logger.Info("refbot up",
		zap.String("gateway", cfg.BanchoBaseURL),
		zap.Int("max_ongoing", cfg.MaxOngoingMatches))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	_ = api.Shutdown()
	_ = controller.Stop()
	_ = ws.Close(context.Background())
	_ = leases.Close()
	_ = st.Close()
}
