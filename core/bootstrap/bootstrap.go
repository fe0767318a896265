// Package bootstrap brings the process from a parsed config to a ready
// database: logger, connection, migrations, then reference-data seeding.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "stickerdex/core/config"
	coredatabase "stickerdex/core/database"
	"stickerdex/core/logger"
)

// Options drive Run. The three function fields default to the real
// logger and database packages; tests substitute them.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error

	// Seeders run after migrations, in order.
	Seeders []Seeder
}

// Result carries what the pipeline produced.
type Result struct {
	DB *sqlx.DB
}

func (o *Options) fillDefaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}

// Run initializes the logger, connects to Postgres, applies migrations
// and runs the seeders. A failure after the connection opened closes it
// before returning.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	opts.fillDefaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	if err := opts.Migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	for _, seeder := range opts.Seeders {
		if seeder == nil {
			continue
		}
		if err := seeder.Seed(context.Background(), db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
		}
	}

	return &Result{DB: db}, nil
}
