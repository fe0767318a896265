package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stickerdex/internal/models"
)

const userColumns = `id, username, is_default_language, banned, reverted, created_at`

func (q queries) GetUser(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, q.ext, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if noRows(err) {
		return models.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetOrCreateUser registers a user on first contact. The stored
// username follows whatever Telegram currently reports.
func (q queries) GetOrCreateUser(ctx context.Context, id int64, username string) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, q.ext, &user, `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
		RETURNING `+userColumns,
		id, username)
	if err != nil {
		return models.User{}, fmt.Errorf("get or create user: %w", err)
	}
	return user, nil
}

func (q queries) SetUserBanned(ctx context.Context, id int64, banned bool) error {
	if err := q.execOne(ctx, `UPDATE users SET banned = $2 WHERE id = $1`, id, banned); err != nil {
		return fmt.Errorf("set user banned: %w", err)
	}
	return nil
}

// SetUserReverted flips the marker consulted by user-revert tasks.
func (q queries) SetUserReverted(ctx context.Context, id int64, reverted bool) error {
	if err := q.execOne(ctx, `UPDATE users SET reverted = $2 WHERE id = $1`, id, reverted); err != nil {
		return fmt.Errorf("set user reverted: %w", err)
	}
	return nil
}

func (q queries) SetUserDefaultLanguage(ctx context.Context, id int64, defaultLanguage bool) error {
	if err := q.execOne(ctx, `UPDATE users SET is_default_language = $2 WHERE id = $1`, id, defaultLanguage); err != nil {
		return fmt.Errorf("set user language scope: %w", err)
	}
	return nil
}
