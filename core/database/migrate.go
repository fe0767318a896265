package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"stickerdex/core/logger"
)

// RunMigrations applies every pending up migration from ./migrations.
// It waits for the database first; in compose setups the bot usually
// starts before Postgres finishes initializing.
func RunMigrations(cfg Config) error {
	dsn := cfg.URL()
	if err := WaitForPostgres(dsn, 30*time.Second); err != nil {
		logger.MIG.Error("db not ready",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dir := filepath.Join(cwd, "migrations")

	files := upMigrations(dir)
	logFileSet("resolve", dir, files)

	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	fromVer, _, _ := m.Version()

	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)

	if errors.Is(upErr, migrate.ErrNoChange) {
		logSummary(uint64(fromVer), uint64(fromVer), 0, took)
		return nil
	}
	if upErr != nil {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	applied := versionsBetween(files, uint64(fromVer), uint64(toVer))
	if len(applied) > 0 {
		logFileSet("apply", "", applied)
	}
	logSummary(uint64(fromVer), uint64(toVer), len(applied), took)
	return nil
}

func logSummary(from, to uint64, applied int, took time.Duration) {
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", from),
		slog.Uint64("to_ver", to),
		slog.Int("files", applied),
		slog.Duration("duration", took),
	)
}

func logFileSet(event, path string, files []string) {
	preview, truncated := logger.SummarizeStrings(files, 6)
	args := []any{
		slog.String("event", event),
		slog.Int("files_total", len(files)),
	}
	if path != "" {
		args = append(args, slog.String("path", path))
	}
	if preview != "" {
		args = append(args, slog.String("files_preview", preview))
	}
	if truncated {
		args = append(args, slog.Bool("files_truncated", true))
	}
	logger.MIG.Debug("migration files", args...)
}

// upMigrations lists the *.up.sql files in version order.
func upMigrations(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func migrationVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// versionsBetween returns the migration files with from < version <= to.
func versionsBetween(files []string, from, to uint64) []string {
	if to <= from {
		return nil
	}
	var out []string
	for _, f := range files {
		if v := migrationVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
