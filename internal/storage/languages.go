package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stickerdex/internal/models"
)

func (q queries) GetLanguage(ctx context.Context, name string) (models.Language, error) {
	var language models.Language
	err := sqlx.GetContext(ctx, q.ext, &language,
		`SELECT name, created_at FROM languages WHERE name = $1`, name)
	if noRows(err) {
		return models.Language{}, fmt.Errorf("language %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return models.Language{}, fmt.Errorf("get language: %w", err)
	}
	return language, nil
}

// CreateLanguage registers an accepted tagging language. Proposing a
// name that already exists fails with ErrConflict.
func (q queries) CreateLanguage(ctx context.Context, name string) error {
	_, err := q.ext.ExecContext(ctx, `INSERT INTO languages (name) VALUES ($1)`, name)
	if isUniqueViolation(err) {
		return fmt.Errorf("language %q: %w", name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create language: %w", err)
	}
	return nil
}

func (q queries) DeleteLanguage(ctx context.Context, name string) error {
	if err := q.execOne(ctx, `DELETE FROM languages WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete language: %w", err)
	}
	return nil
}

func (q queries) ListLanguages(ctx context.Context) ([]models.Language, error) {
	var languages []models.Language
	err := sqlx.SelectContext(ctx, q.ext, &languages,
		`SELECT name, created_at FROM languages ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	return languages, nil
}
