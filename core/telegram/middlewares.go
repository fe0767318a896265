package telegram

import (
	"strings"
	"time"

	coreconfig "stickerdex/core/config"
	"stickerdex/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares assembles the global chain. Order matters: recover
// wraps everything, the limiter runs before any logging or counting
// spends work on an update that is about to be dropped.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}
	if rl := rateLimiterFromConfig(cfg, onLimited); rl != nil {
		mws = append(mws, Middleware{Name: "rate_limit", Use: rl})
	}
	return append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}

func rateLimiterFromConfig(cfg *coreconfig.Config, onLimited tele.HandlerFunc) tele.MiddlewareFunc {
	if cfg == nil {
		return nil
	}
	interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
	if interval <= 0 {
		return nil
	}
	exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		exclude[strings.ToLower(kind)] = struct{}{}
	}
	return middleware.RateLimitMiddleware(middleware.RateLimitOptions{
		Interval:  interval,
		Exclude:   exclude,
		OnLimited: onLimited,
	})
}
