// Package bot assembles the payment bot: command registry, flow dispatch,
// middleware stack, and lifecycle hooks around the core Telegram runner.
package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/stablepay/paybot/core/config"
	tg "github.com/stablepay/paybot/core/telegram"
	"github.com/stablepay/paybot/core/telegram/router"
	tgsender "github.com/stablepay/paybot/core/telegram/sender"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/flows"
	"github.com/stablepay/paybot/internal/ledger"
	"github.com/stablepay/paybot/internal/session"
)

// StatsSource aggregates ledger counters for the admin stats surface.
type StatsSource interface {
	Stats(ctx context.Context) (ledger.Stats, error)
}

// Closer is the teardown surface of the notification manager.
type Closer interface {
	Unsubscribe(conversationID int64)
	Close()
}

// Options carries everything the app needs to run.
type Options struct {
	Config   *coreconfig.Config
	API      flows.PaymentAPI
	Sessions session.Store
	States   *flow.StateStore
	Flows    *flows.Set

	// Refresher is started on app start; nil disables background refresh.
	Refresher *session.Refresher
	// Notifier is closed on shutdown; nil disables deposit notifications.
	Notifier Closer
	// Ledger backs the admin stats command; nil reports no ledger data.
	Ledger StatsSource
}

// App owns the registry and the handlers behind every bot surface.
type App struct {
	cfg      *coreconfig.Config
	api      flows.PaymentAPI
	sessions session.Store
	states   *flow.StateStore
	flows    *flows.Set

	refresher *session.Refresher
	notifier  Closer
	stats     StatsSource

	reg       *tg.Registry
	bot       atomic.Pointer[tele.Bot]
	startedAt time.Time

	stopRefresher context.CancelFunc
}

// New validates dependencies and registers every command and callback.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.API == nil || opts.Sessions == nil || opts.States == nil || opts.Flows == nil {
		return nil, fmt.Errorf("bot: api, sessions, states and flows are required")
	}

	a := &App{
		cfg:       opts.Config,
		api:       opts.API,
		sessions:  opts.Sessions,
		states:    opts.States,
		flows:     opts.Flows,
		refresher: opts.Refresher,
		notifier:  opts.Notifier,
		stats:     opts.Ledger,
		reg:       tg.NewRegistry(),
	}

	a.registerCommands()
	if err := a.registerCallbacks(); err != nil {
		return nil, err
	}
	a.reg.SetTextFallback(a.unknownText)
	return a, nil
}

// Registry exposes the command registry (for diagnostics and tests).
func (a *App) Registry() *tg.Registry { return a.reg }

// SendNotification delivers an out-of-band message to a conversation. It is
// the transport behind deposit event notifications and only works once the
// bot is running.
func (a *App) SendNotification(conversationID int64, text string) error {
	b := a.bot.Load()
	if b == nil {
		return fmt.Errorf("bot: not running")
	}
	_, err := b.Send(tele.ChatID(conversationID), text)
	return err
}

// TelegramRunOptions assembles the middleware stack, routes, and lifecycle
// hooks for the core Telegram runner.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	middlewares := tg.DefaultMiddlewares(a.cfg, func(c tele.Context) error {
		return c.Send("Easy there, one step at a time")
	})

	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(flowRouter{app: a}, a.reg, router.TextOptions{})...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.reg,
		Middlewares: middlewares,
		Routes:      routes,
		DispatcherOptions: tgsender.Options{
			QueueSize: 256,
			Workers:   4,
		},
		OnStart: a.onStart,
		OnStop:  a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	a.bot.Store(rt.Bot)
	a.startedAt = time.Now()

	if a.refresher != nil {
		refreshCtx, cancel := context.WithCancel(context.Background())
		a.stopRefresher = cancel
		go a.refresher.Run(refreshCtx)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, rt tg.Runtime) error {
	if a.stopRefresher != nil {
		a.stopRefresher()
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	a.bot.Store(nil)
	return nil
}
