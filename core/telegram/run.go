package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	coreconfig "stickerdex/core/config"
	tghelpers "stickerdex/core/telegram/helpers"
	tgsender "stickerdex/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds one handler to a telebot endpoint. Endpoint values go
// straight to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions carries everything RunTelegram needs to assemble the bot.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	// OnStart runs after the bot object exists but before updates flow.
	// OnStop runs after polling ends, before the dispatcher drains.
	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime hands the live components to the lifecycle hooks. Apps that
// send outside a handler keep the Bot and Dispatcher references.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram assembles the bot from the options and runs it until the
// context is cancelled or polling stops on its own.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config

	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := buildPoller(cfg)
	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: buildHTTPClient(longPollWindow(cfg)),
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	logPollerMode(ctx, poller, time.Since(buildStart))
	if _, longpoll := poller.(*tele.LongPoller); longpoll && strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		clearStaleWebhook(cfg.Telegram.Token)
	}

	dispatcher := tgsender.NewDispatcher(opts.DispatcherOptions)
	tghelpers.SetDispatcher(dispatcher)
	defer func() {
		dispatcher.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(bot, reg)

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	polling := make(chan struct{})
	go func() {
		bot.Start()
		close(polling)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-polling
		runErr = ctx.Err()
	case <-polling:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(ctx, rt); err != nil {
			return err
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
