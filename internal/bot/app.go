package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	tele "gopkg.in/telebot.v4"

	"stickerdex/core/bootstrap"
	"stickerdex/core/cmd"
	"stickerdex/core/logger"
	tg "stickerdex/core/telegram"
	"stickerdex/core/telegram/router"
	"stickerdex/core/telegram/sender"
	"stickerdex/core/telegram/state"
	"stickerdex/core/telegram/ui"
	"stickerdex/internal/locales"
	"stickerdex/internal/models"
	"stickerdex/internal/moderation"
	"stickerdex/internal/session"
	"stickerdex/internal/storage"
	"stickerdex/internal/tagging"
)

// App owns the sticker workflow wiring: storage, the tagging and
// moderation engines, the session state machine, and every handler
// bound to the bot. Fields below the bot line are populated in onStart
// once telebot is up; handlers only run after that.
type App struct {
	cfg        *Config
	store      *storage.Store
	bundle     *i18n.Bundle
	msgs       *locales.Messages
	fsm        state.Manager
	moderation *moderation.Engine

	bot       *tele.Bot
	botName   string
	transport *Transport
	tagger    *tagging.Engine
	importer  *Importer
	sessions  *session.Manager
}

var _ ui.FallbackProvider = (*App)(nil)

// Bootstrap brings up the infrastructure and builds the application.
// The returned app still needs the bot runtime; cmd.Run provides it.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}

	result, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
		Seeders:  []bootstrap.Seeder{bootstrap.SeederFunc(seedDefaultLanguage)},
	})
	if err != nil {
		return nil, err
	}

	if err := initSentry(cfg.Sentry); err != nil {
		return nil, err
	}

	bundle, err := locales.NewBundle()
	if err != nil {
		return nil, fmt.Errorf("bot: load locales: %w", err)
	}

	store := storage.New(result.DB)
	app := &App{
		cfg:        cfg,
		store:      store,
		bundle:     bundle,
		msgs:       locales.NewMessages(bundle, cfg.Bot.DefaultLocale),
		fsm:        state.NewMemoryManager(),
		moderation: moderation.NewEngine(store),
	}
	return app, nil
}

// TelegramRunOptions assembles the routing table and runtime hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.registerCommands(reg)
	a.registerCallbacks(reg)
	a.registerInputStates()
	reg.SetTextFallback(a.UnknownText())
	reg.SetCallbackNotFound(a.UnknownCallback())

	routes := []tg.Route{
		router.CallbackRoute(reg, router.CallbackOptions{KeyFunc: callbackKey}),
		router.StickerRoute(a.handleSticker),
		router.QueryRoute(a.handleQuery),
	}
	routes = append(routes, router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})...)
	routes = append(routes, router.TextRoutes(awaitRouter{mgr: a.fsm}, reg, router.TextOptions{
		UnknownDocument: a.UnknownDocument(),
	})...)

	mws := tg.DefaultMiddlewares(a.cfg.CoreConfig(), nil)
	mws = append(mws,
		tg.Middleware{Name: "fsm_session", Use: state.WithSession(a.fsm)},
		tg.Middleware{Name: "user", Use: a.userMiddleware},
	)

	return tg.RunOptions{
		Config:   a.cfg.CoreConfig(),
		Registry: reg,
		DispatcherOptions: sender.Options{
			QueueSize: a.cfg.Bot.SendQueueSize,
			Workers:   a.cfg.Bot.SendWorkers,
			SendRate:  a.cfg.Bot.SendRate,
		},
		Middlewares: mws,
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

// onStart finishes the wiring that needs a live bot: outbound
// transport, the import worker, and the session state machine.
func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	a.bot = rt.Bot
	if rt.Bot.Me != nil {
		a.botName = rt.Bot.Me.Username
	}
	a.transport = NewTransport(rt.Bot, rt.Dispatcher, a.msgs)
	a.tagger = tagging.NewEngine(a.store, a.transport)
	a.importer = NewImporter(a.store, a.tagger, a.transport, a.msgs)
	a.sessions = session.NewManager(a.store, a.tagger, a.transport, a.importer, a.msgs)
	return nil
}

func (a *App) onStop(ctx context.Context, rt tg.Runtime) error {
	if a.importer != nil {
		a.importer.Close()
	}
	sentry.Flush(2 * time.Second)
	return nil
}

// seedDefaultLanguage makes sure the built-in language exists. Every
// user and set starts on it, so the row has to be there before the
// first update arrives.
func seedDefaultLanguage(ctx context.Context, db *sqlx.DB) error {
	err := storage.New(db).CreateLanguage(ctx, models.DefaultLanguageName)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		return err
	}
	return nil
}

func initSentry(cfg SentryConfig) error {
	if cfg.DSN == "" {
		logger.L.Info("sentry disabled, no dsn configured")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("bot: sentry init: %w", err)
	}
	return nil
}

// userMsgs renders replies in the sender's Telegram language, falling
// back to the configured default.
func (a *App) userMsgs(c tele.Context) *locales.Messages {
	langs := make([]string, 0, 2)
	if sender := c.Sender(); sender != nil && sender.LanguageCode != "" {
		langs = append(langs, sender.LanguageCode)
	}
	langs = append(langs, a.cfg.Bot.DefaultLocale)
	return locales.NewMessages(a.bundle, langs...)
}

func (a *App) isAdmin(c tele.Context) bool {
	sender := c.Sender()
	return sender != nil && a.cfg.Telegram.AdminID != 0 && sender.ID == a.cfg.Telegram.AdminID
}

// fail tells the user something went wrong and propagates the error to
// the handler summary.
func (a *App) fail(c tele.Context, err error) error {
	_ = c.Send(a.userMsgs(c).ActionFailed())
	return err
}

func displayName(user models.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("user %d", user.ID)
}
