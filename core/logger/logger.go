package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"stickerdex/core/buildinfo"
	coreconfig "stickerdex/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	sink    *fanoutWriter
	closers []io.Closer

	levelVar slog.LevelVar

	debugGate     = newSampleGate(1, 50)
	traceOverride bool
	stacksOn      = true

	// L is the process-wide base logger.
	L *slog.Logger

	// DB logs connection pool and query events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs schema migration runs.
	MIG *slog.Logger
	// TWire logs handler and middleware wiring at startup.
	TWire *slog.Logger
	// Session logs tagging session state transitions.
	Session *slog.Logger
	// Tagging logs tag change activity.
	Tagging *slog.Logger
	// Moderation logs review task and flag decisions.
	Moderation *slog.Logger
	// Search logs inline search activity.
	Search *slog.Logger
	// Importer logs sticker set import runs.
	Importer *slog.Logger
)

// InitLogger configures the process logger and the per-subsystem channels.
// Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		levelVar.Set(selectLevel(cfg))
		debugGate.Set(selectDebugSample(cfg))
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))
		if cfg != nil {
			if v := strings.TrimSpace(cfg.Logging.Stacks); v != "" {
				stacksOn = isTruthy(v)
			}
		}

		outputs, opened, err := openOutputs(cfg)
		if err != nil {
			initErr = err
			return
		}
		closers = opened
		sink = newFanoutWriter(outputs, 64*1024)

		handler := newLineHandler(lineOptions{
			level: &levelVar,
			sink:  sink,
			enc:   selectEncoding(cfg),
			order: selectKeyOrder(cfg),
		})

		L = slog.New(handler)
		slog.SetDefault(L)

		DB = L.With("component", "db")
		TG = L.With("component", "tg")
		MIG = L.With("component", "db.migrate")
		TWire = L.With("component", "tg.wire")
		Session = L.With("component", "session")
		Tagging = L.With("component", "tagging")
		Moderation = L.With("component", "moderation")
		Search = L.With("component", "search")
		Importer = L.With("component", "importer")

		logStartup(cfg)
	})
	return initErr
}

func logStartup(cfg *coreconfig.Config) {
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
	}
	if cfg != nil {
		attrs = append(attrs, slog.String("cfg_profile", selectProfile(cfg)))
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes queued log lines and closes opened files.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if sink != nil {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func selectEncoding(cfg *coreconfig.Config) encoding {
	if cfg == nil {
		return encodeJSON
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "kv", "text", "pretty":
		return encodeKV
	case "json":
		return encodeJSON
	}
	// Debug and dev profiles read better as aligned key=value columns.
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Profile)) {
	case "debug", "dev":
		return encodeKV
	}
	return encodeJSON
}

func selectKeyOrder(cfg *coreconfig.Config) []string {
	if cfg == nil {
		return append([]string(nil), defaultKeyOrder...)
	}
	raw := strings.TrimSpace(cfg.Logging.KeysOrder)
	if raw == "" || raw == "default" {
		return append([]string(nil), defaultKeyOrder...)
	}
	var order []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			order = append(order, trimmed)
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

func selectLevel(cfg *coreconfig.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func selectDebugSample(cfg *coreconfig.Config) (int, int) {
	if cfg == nil {
		return 1, 50
	}
	spec := strings.TrimSpace(cfg.Logging.DebugSample)
	if spec == "" {
		return 1, 50
	}
	num, den := parseSampleRatio(spec)
	if num == 0 && den == 0 {
		return 0, 0
	}
	if num <= 0 || den <= 0 {
		return 1, 50
	}
	return num, den
}

func openOutputs(cfg *coreconfig.Config) ([]sinkOutput, []io.Closer, error) {
	outputs := []sinkOutput{{w: os.Stdout, min: slog.LevelDebug}}
	var opened []io.Closer
	if cfg == nil {
		return outputs, opened, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	if dir == "" {
		return outputs, opened, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: create log dir %s: %v", dir, err)
		return outputs, opened, nil
	}
	if f := openLogFile(dir, cfg.Logging.BotFile); f != nil {
		outputs = append(outputs, sinkOutput{w: f, min: slog.LevelDebug})
		opened = append(opened, f)
	}
	if f := openLogFile(dir, cfg.Logging.ErrorsFile); f != nil {
		outputs = append(outputs, sinkOutput{w: f, min: slog.LevelWarn})
		opened = append(opened, f)
	}
	return outputs, opened, nil
}

func openLogFile(dir, name string) *os.File {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: open log file %s: %v", path, err)
		return nil
	}
	return f
}

func selectProfile(cfg *coreconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if profile := strings.TrimSpace(cfg.Logging.Profile); profile != "" {
		return strings.ToLower(profile)
	}
	return "prod"
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background is a readability alias for context.Background at logging call
// sites that have no request context.
func Background() context.Context {
	return context.Background()
}

// LogEvent emits one event line on the given logger, falling back to the
// context logger and then the process logger.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns a logger scoped to one component attribute.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return L.With("component", trimmed)
	}
	return L
}

func emit(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		logg = FromContext(ctx)
		if logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug-level event for the component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug gates per-update debug detail so busy chats do not
// flood the log. TRACE=1 in the environment forces everything through.
func ShouldSampleDebug() bool {
	return traceOverride || debugGate.Allow()
}

// TraceEnabled reports whether the TRACE override is active.
func TraceEnabled() bool {
	return traceOverride
}

// StacksEnabled reports whether panic lines should carry stack traces.
func StacksEnabled() bool {
	return stacksOn
}
