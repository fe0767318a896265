package router

import (
	"log/slog"

	"stickerdex/core/logger"
	tg "stickerdex/core/telegram"
	"stickerdex/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the admin gate applied to commands
// registered as AdminOnly.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes builds one route per registered command. Each handler
// carries its own recover and logger wrap so a command registered after
// the global chain still reports like the rest. The admin gate sits
// outermost: a rejected caller never reaches the receipt log.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminGate := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for cmd, def := range cmds {
		h := middleware.LoggerMiddleware(middleware.RecoverMiddleware(def.Handler))
		if def.AdminOnly {
			h = adminGate(h)
		}
		routes = append(routes, tg.Route{Endpoint: cmd, Handler: h})
	}

	logger.TWire.LogAttrs(logger.Background(), slog.LevelInfo, "routing table built",
		slog.String("event", "tg.wire"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
