package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stickerdex/internal/models"
)

const tagColumns = `id, name, is_default_language, is_emoji`

// GetOrCreateTag resolves a tag by its natural key, creating it when
// missing. Two concurrent resolutions of the same key yield the same
// row: the insert loser re-queries instead of failing.
func (q queries) GetOrCreateTag(ctx context.Context, name string, defaultLanguage, isEmoji bool) (models.Tag, error) {
	selectTag := `SELECT ` + tagColumns + ` FROM tags WHERE name = $1 AND is_default_language = $2 AND is_emoji = $3`

	var tag models.Tag
	err := sqlx.GetContext(ctx, q.ext, &tag, selectTag, name, defaultLanguage, isEmoji)
	if err == nil {
		return tag, nil
	}
	if !noRows(err) {
		return models.Tag{}, fmt.Errorf("get tag: %w", err)
	}

	err = sqlx.GetContext(ctx, q.ext, &tag,
		`INSERT INTO tags (name, is_default_language, is_emoji) VALUES ($1, $2, $3) RETURNING `+tagColumns,
		name, defaultLanguage, isEmoji)
	if err == nil {
		return tag, nil
	}
	if !isUniqueViolation(err) {
		return models.Tag{}, fmt.Errorf("create tag: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, &tag, selectTag, name, defaultLanguage, isEmoji); err != nil {
		return models.Tag{}, fmt.Errorf("get tag after conflict: %w", err)
	}
	return tag, nil
}
