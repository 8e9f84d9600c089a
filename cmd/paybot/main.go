package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/stablepay/paybot/core/bootstrap"
	"github.com/stablepay/paybot/core/cmd"
	coreconfig "github.com/stablepay/paybot/core/config"
	coredatabase "github.com/stablepay/paybot/core/database"
	"github.com/stablepay/paybot/internal/bot"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/flows"
	"github.com/stablepay/paybot/internal/ledger"
	"github.com/stablepay/paybot/internal/notify"
	"github.com/stablepay/paybot/internal/payapi"
	"github.com/stablepay/paybot/internal/session"
)

type appConfig struct {
	core *coreconfig.Config
	db   coredatabase.Config
}

func (c *appConfig) CoreConfig() *coreconfig.Config { return c.core }

func main() {
	_ = godotenv.Load()

	if err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        loadConfig,
		Bootstrap:         buildApp,
	}); err != nil {
		log.Fatalf("paybot: %v", err)
	}
}

func loadConfig(path string) (cmd.ConfigCarrier, error) {
	core, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	var db coredatabase.Config
	if err := envconfig.Process("", &db); err != nil {
		return nil, fmt.Errorf("database env config: %w", err)
	}
	return &appConfig{core: core, db: db}, nil
}

func buildApp(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*appConfig)
	if !ok {
		return nil, fmt.Errorf("unexpected config carrier %T", carrier)
	}
	core := cfg.core

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:   core,
		Database: cfg.db,
	})
	if err != nil {
		return nil, err
	}

	api, err := payapi.NewClient(payapi.Options{
		BaseURL: core.PayAPI.BaseURL,
		Timeout: time.Duration(core.PayAPI.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// Store reads signal the refresher when a session runs low; the
	// refresher is built right after the store, so the closure is safe.
	var refresher *session.Refresher
	sessOpts := session.Options{
		MinLifetime:      core.Session.MinLifetime(),
		RefreshThreshold: core.Session.RefreshThreshold(),
		OnRefreshDue: func(id int64) {
			if refresher != nil {
				refresher.Enqueue(id)
			}
		},
	}

	var sessions session.Store
	switch core.Session.Backend {
	case coreconfig.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     core.Redis.Addr,
			Password: core.Redis.Password,
			DB:       core.Redis.DB,
		})
		sessions = session.NewRedisStore(client, sessOpts)
	default:
		sessions = session.NewMemoryStore(sessOpts)
	}

	refresher = session.NewRefresher(sessions,
		func(ctx context.Context, s session.Session) (string, time.Time, error) {
			auth, err := api.RefreshToken(ctx, s.Token)
			if err != nil {
				return "", time.Time{}, err
			}
			return auth.Token, auth.ExpiresAt, nil
		},
		session.RefresherOptions{
			Interval:  core.Session.RefreshInterval(),
			Threshold: core.Session.RefreshThreshold(),
		},
	)

	states := flow.NewStateStore()

	var bounds flow.AmountBounds
	if min, ok := core.Limits.MinTransferDecimal(); ok {
		bounds.Min, bounds.HasMin = min, true
	}
	if max, ok := core.Limits.MaxTransferDecimal(); ok {
		bounds.Max, bounds.HasMax = max, true
	}

	// The notifier delivers through the app, which exists only a few lines
	// down; events cannot arrive before the bot is running.
	var app *bot.App
	notifier, err := notify.NewManager(notify.Options{
		EventsURL: core.PayAPI.EventsURL,
		Send: func(conversationID int64, text string) error {
			return app.SendNotification(conversationID, text)
		},
	})
	if err != nil {
		return nil, err
	}

	led := ledger.New(boot.DB)

	flowSet, err := flows.Build(flows.Deps{
		API:      api,
		Sessions: sessions,
		States:   states,
		Bounds:   bounds,
		Ledger:   led,
		Notifier: notifier,
	})
	if err != nil {
		return nil, err
	}

	app, err = bot.New(bot.Options{
		Config:    core,
		API:       api,
		Sessions:  sessions,
		States:    states,
		Flows:     flowSet,
		Refresher: refresher,
		Notifier:  notifier,
		Ledger:    led,
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}
