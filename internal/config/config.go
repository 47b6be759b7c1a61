package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	BanchoBaseURL string
	BanchoWSURL   string

	DatabaseURL string
	RedisURL    string

	// RefereeName is the single identity allowed to issue the close command.
	RefereeName string
	// LobbyPrefix is prepended to lobby names, e.g. "VASH: (A) vs (B)".
	LobbyPrefix string

	TickInterval  time.Duration
	QueueInterval time.Duration

	// MaxOngoingMatches caps the number of matches reconciled at once.
	MaxOngoingMatches int

	HTTPListenAddr string

	MessageDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		LobbyPrefix:       "VASH",
		TickInterval:      5 * time.Second,
		QueueInterval:     15 * time.Second,
		MaxOngoingMatches: 4,
		HTTPListenAddr:    ":3000",
	}

	cfg.BanchoBaseURL = strings.TrimSpace(os.Getenv("BANCHO_BASE_URL"))
	cfg.BanchoWSURL = strings.TrimSpace(os.Getenv("BANCHO_WS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.RefereeName = strings.TrimSpace(os.Getenv("REFEREE_NAME"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("LOBBY_PREFIX")); v != "" {
		cfg.LobbyPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("TICK_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			cfg.QueueInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_ONGOING_MATCHES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOngoingMatches = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_LISTEN_ADDR")); v != "" {
		cfg.HTTPListenAddr = v
	}

	if cfg.BanchoBaseURL == "" {
		return nil, errors.New("BANCHO_BASE_URL is required")
	}
	if cfg.BanchoWSURL == "" {
		return nil, errors.New("BANCHO_WS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RefereeName == "" {
		return nil, errors.New("REFEREE_NAME is required")
	}

	return cfg, nil
}
