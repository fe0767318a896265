package bootstrap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "stickerdex/core/config"
	coredatabase "stickerdex/core/database"
)

func stubPool(t *testing.T) *sqlx.DB {
	t.Helper()
	// Open is lazy; no server is contacted until a query runs.
	db, err := sqlx.Open("postgres", "host=127.0.0.1 dbname=stub sslmode=disable")
	if err != nil {
		t.Fatalf("open stub pool: %v", err)
	}
	return db
}

func TestRunOrdersPipeline(t *testing.T) {
	var calls []string
	pool := stubPool(t)

	result, err := Run(Options{
		Config: &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error {
			calls = append(calls, "logger")
			return nil
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			calls = append(calls, "connect")
			return pool, nil
		},
		Migrate: func(coredatabase.Config) error {
			calls = append(calls, "migrate")
			return nil
		},
		Seeders: []Seeder{
			nil,
			SeederFunc(func(context.Context, *sqlx.DB) error {
				calls = append(calls, "seed")
				return nil
			}),
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.DB != pool {
		t.Fatal("result does not carry the connected pool")
	}
	want := "logger,connect,migrate,seed"
	if got := strings.Join(calls, ","); got != want {
		t.Fatalf("pipeline order = %s, want %s", got, want)
	}
	_ = pool.Close()
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunClosesPoolWhenMigrationsFail(t *testing.T) {
	pool := stubPool(t)
	boom := errors.New("boom")

	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			return pool, nil
		},
		Migrate: func(coredatabase.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if pingErr := pool.Ping(); pingErr == nil || !strings.Contains(pingErr.Error(), "closed") {
		t.Fatalf("pool should be closed after failed migrations, ping err = %v", pingErr)
	}
}

func TestRunClosesPoolWhenSeederFails(t *testing.T) {
	pool := stubPool(t)
	boom := errors.New("seed boom")

	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			return pool, nil
		},
		Migrate: func(coredatabase.Config) error { return nil },
		Seeders: []Seeder{
			SeederFunc(func(context.Context, *sqlx.DB) error { return boom }),
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if pingErr := pool.Ping(); pingErr == nil || !strings.Contains(pingErr.Error(), "closed") {
		t.Fatalf("pool should be closed after failed seeding, ping err = %v", pingErr)
	}
}
