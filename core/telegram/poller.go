package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	coreconfig "stickerdex/core/config"
	"stickerdex/core/logger"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollSeconds = 10

// longPollWindow returns the configured getUpdates hold time, zero in
// webhook mode. The HTTP client sizes its header timeout from this.
func longPollWindow(cfg *coreconfig.Config) time.Duration {
	if strings.EqualFold(strings.TrimSpace(cfg.Telegram.RunMode), coreconfig.RunModeWebhook) {
		return 0
	}
	sec := cfg.Telegram.LongPollTimeoutSeconds
	if sec <= 0 {
		sec = defaultLongPollSeconds
	}
	return time.Duration(sec) * time.Second
}

// buildPoller picks the update source from the config: a webhook listener
// or a long poller.
func buildPoller(cfg *coreconfig.Config) tele.Poller {
	if window := longPollWindow(cfg); window > 0 {
		return &tele.LongPoller{Timeout: window}
	}
	return &tele.Webhook{
		Listen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
		Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
	}
}

// logPollerMode emits one line naming the update source the bot runs on.
func logPollerMode(ctx context.Context, poller tele.Poller, buildTook time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	case *tele.LongPoller:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	}
}

// clearStaleWebhook drops a leftover webhook registration; Telegram
// refuses getUpdates while one is set. Failures only warn, a bot that
// never ran in webhook mode has nothing to delete.
func clearStaleWebhook(token string) {
	if err := deleteWebhook(token, false); err != nil {
		logger.TG.Warn("failed to delete webhook",
			slog.String("event", "delete_webhook"),
			slog.String("mode", "polling"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TG.Info("webhook deleted",
		slog.String("event", "delete_webhook"),
		slog.String("mode", "polling"),
	)
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := fmt.Sprintf("drop_pending_updates=%t", dropPending)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
