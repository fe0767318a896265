package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stickerdex/internal/models"
)

const setColumns = `name, title, language, is_default_language, complete, completely_tagged, banned, nsfw, furry, reviewed, deluxe, created_at`

func (q queries) GetStickerSet(ctx context.Context, name string) (models.StickerSet, error) {
	var set models.StickerSet
	err := sqlx.GetContext(ctx, q.ext, &set,
		`SELECT `+setColumns+` FROM sticker_sets WHERE name = $1`, name)
	if noRows(err) {
		return models.StickerSet{}, fmt.Errorf("sticker set %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return models.StickerSet{}, fmt.Errorf("get sticker set: %w", err)
	}
	return set, nil
}

// GetOrCreateStickerSet loads a set by name, creating a skeleton row on
// first reference. The second return reports whether this call created
// it, so the caller can kick off the import.
func (q queries) GetOrCreateStickerSet(ctx context.Context, name, title string) (models.StickerSet, bool, error) {
	selectSet := `SELECT ` + setColumns + ` FROM sticker_sets WHERE name = $1`

	var set models.StickerSet
	err := sqlx.GetContext(ctx, q.ext, &set, selectSet, name)
	if err == nil {
		return set, false, nil
	}
	if !noRows(err) {
		return models.StickerSet{}, false, fmt.Errorf("get sticker set: %w", err)
	}

	err = sqlx.GetContext(ctx, q.ext, &set,
		`INSERT INTO sticker_sets (name, title) VALUES ($1, $2) RETURNING `+setColumns,
		name, title)
	if err == nil {
		return set, true, nil
	}
	if !isUniqueViolation(err) {
		return models.StickerSet{}, false, fmt.Errorf("create sticker set: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, &set, selectSet, name); err != nil {
		return models.StickerSet{}, false, fmt.Errorf("get sticker set after conflict: %w", err)
	}
	return set, false, nil
}

func (q queries) UpdateStickerSetTitle(ctx context.Context, name, title string) error {
	if err := q.execOne(ctx, `UPDATE sticker_sets SET title = $2 WHERE name = $1`, name, title); err != nil {
		return fmt.Errorf("update sticker set title: %w", err)
	}
	return nil
}

// MarkStickerSetComplete flips the import-finished flag.
func (q queries) MarkStickerSetComplete(ctx context.Context, name string) error {
	if err := q.execOne(ctx, `UPDATE sticker_sets SET complete = true WHERE name = $1`, name); err != nil {
		return fmt.Errorf("mark sticker set complete: %w", err)
	}
	return nil
}

// MarkStickerSetCompletelyTagged records that a full tagging pass over
// the set finished.
func (q queries) MarkStickerSetCompletelyTagged(ctx context.Context, name string) error {
	if err := q.execOne(ctx, `UPDATE sticker_sets SET completely_tagged = true WHERE name = $1`, name); err != nil {
		return fmt.Errorf("mark sticker set completely tagged: %w", err)
	}
	return nil
}

func (q queries) SetStickerSetBanned(ctx context.Context, name string, banned bool) error {
	return q.setSetFlag(ctx, "banned", name, banned)
}

func (q queries) SetStickerSetNSFW(ctx context.Context, name string, nsfw bool) error {
	return q.setSetFlag(ctx, "nsfw", name, nsfw)
}

func (q queries) SetStickerSetFurry(ctx context.Context, name string, furry bool) error {
	return q.setSetFlag(ctx, "furry", name, furry)
}

func (q queries) SetStickerSetReviewed(ctx context.Context, name string, reviewed bool) error {
	return q.setSetFlag(ctx, "reviewed", name, reviewed)
}

func (q queries) SetStickerSetDeluxe(ctx context.Context, name string, deluxe bool) error {
	return q.setSetFlag(ctx, "deluxe", name, deluxe)
}

// setSetFlag updates one moderation flag column. The column name comes
// from the callers above, never from input.
func (q queries) setSetFlag(ctx context.Context, column, name string, value bool) error {
	if err := q.execOne(ctx, `UPDATE sticker_sets SET `+column+` = $2 WHERE name = $1`, name, value); err != nil {
		return fmt.Errorf("set sticker set %s: %w", column, err)
	}
	return nil
}

func (q queries) SetStickerSetLanguage(ctx context.Context, name, language string, defaultLanguage bool) error {
	err := q.execOne(ctx,
		`UPDATE sticker_sets SET language = $2, is_default_language = $3 WHERE name = $1`,
		name, language, defaultLanguage)
	if err != nil {
		return fmt.Errorf("set sticker set language: %w", err)
	}
	return nil
}

// NextUnreviewedSet returns the oldest fully imported set still waiting
// for review.
func (q queries) NextUnreviewedSet(ctx context.Context) (models.StickerSet, error) {
	var set models.StickerSet
	err := sqlx.GetContext(ctx, q.ext, &set, `
		SELECT `+setColumns+`
		FROM sticker_sets
		WHERE reviewed = false AND complete = true
		ORDER BY created_at, name
		LIMIT 1`)
	if noRows(err) {
		return models.StickerSet{}, fmt.Errorf("review queue: %w", ErrNotFound)
	}
	if err != nil {
		return models.StickerSet{}, fmt.Errorf("next unreviewed set: %w", err)
	}
	return set, nil
}
