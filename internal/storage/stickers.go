package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stickerdex/internal/models"
)

const stickerColumns = `file_id, sticker_set_name, position, created_at`

func (q queries) GetSticker(ctx context.Context, fileID string) (models.Sticker, error) {
	var sticker models.Sticker
	err := sqlx.GetContext(ctx, q.ext, &sticker,
		`SELECT `+stickerColumns+` FROM stickers WHERE file_id = $1`, fileID)
	if noRows(err) {
		return models.Sticker{}, fmt.Errorf("sticker %s: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return models.Sticker{}, fmt.Errorf("get sticker: %w", err)
	}
	return sticker, nil
}

// UpsertSticker inserts a sticker or refreshes its set membership and
// position. Used by the set importer, which re-reads whole sets.
func (q queries) UpsertSticker(ctx context.Context, sticker models.Sticker) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO stickers (file_id, sticker_set_name, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_id) DO UPDATE
		SET sticker_set_name = EXCLUDED.sticker_set_name,
		    position = EXCLUDED.position`,
		sticker.FileID, sticker.SetName, sticker.Position)
	if err != nil {
		return fmt.Errorf("upsert sticker: %w", err)
	}
	return nil
}

// StickersInSet returns the set's stickers in their stable order.
func (q queries) StickersInSet(ctx context.Context, setName string) ([]models.Sticker, error) {
	var stickers []models.Sticker
	err := sqlx.SelectContext(ctx, q.ext, &stickers, `
		SELECT `+stickerColumns+`
		FROM stickers
		WHERE sticker_set_name = $1
		ORDER BY position, file_id`,
		setName)
	if err != nil {
		return nil, fmt.Errorf("stickers in set: %w", err)
	}
	return stickers, nil
}

// RandomEligibleSticker picks a sticker with no recorded changes from a
// fully imported, unflagged, default-language set. Deluxe sets win when
// any of their stickers qualify; the eligibility conditions are
// evaluated at query time, so a sticker tagged since the previous pick
// never comes back.
func (q queries) RandomEligibleSticker(ctx context.Context) (models.Sticker, error) {
	const query = `
		SELECT s.file_id, s.sticker_set_name, s.position, s.created_at
		FROM stickers s
		JOIN sticker_sets ss ON ss.name = s.sticker_set_name
		WHERE ss.complete = true
		  AND ss.banned = false
		  AND ss.nsfw = false
		  AND ss.furry = false
		  AND ss.is_default_language = true
		  AND ($1::bool = false OR ss.deluxe = true)
		  AND NOT EXISTS (SELECT 1 FROM changes c WHERE c.sticker_file_id = s.file_id)
		ORDER BY random()
		LIMIT 1`

	var sticker models.Sticker
	err := sqlx.GetContext(ctx, q.ext, &sticker, query, true)
	if err == nil {
		return sticker, nil
	}
	if !noRows(err) {
		return models.Sticker{}, fmt.Errorf("random deluxe sticker: %w", err)
	}

	err = sqlx.GetContext(ctx, q.ext, &sticker, query, false)
	if noRows(err) {
		return models.Sticker{}, fmt.Errorf("eligible sticker: %w", ErrNotFound)
	}
	if err != nil {
		return models.Sticker{}, fmt.Errorf("random sticker: %w", err)
	}
	return sticker, nil
}

// StickerTags returns every tag attached to the sticker.
func (q queries) StickerTags(ctx context.Context, fileID string) ([]models.Tag, error) {
	var tags []models.Tag
	err := sqlx.SelectContext(ctx, q.ext, &tags, `
		SELECT t.id, t.name, t.is_default_language, t.is_emoji
		FROM tags t
		JOIN sticker_tags st ON st.tag_id = t.id
		WHERE st.sticker_file_id = $1
		ORDER BY t.id`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("sticker tags: %w", err)
	}
	return tags, nil
}

// StickerTagsForLanguage returns the sticker's text tags for one
// language scope. Emoji tags are excluded; they are shown separately.
func (q queries) StickerTagsForLanguage(ctx context.Context, fileID string, defaultLanguage bool) ([]models.Tag, error) {
	var tags []models.Tag
	err := sqlx.SelectContext(ctx, q.ext, &tags, `
		SELECT t.id, t.name, t.is_default_language, t.is_emoji
		FROM tags t
		JOIN sticker_tags st ON st.tag_id = t.id
		WHERE st.sticker_file_id = $1
		  AND t.is_default_language = $2
		  AND t.is_emoji = false
		ORDER BY t.id`,
		fileID, defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("sticker tags for language: %w", err)
	}
	return tags, nil
}

func (q queries) StickerOriginalEmojis(ctx context.Context, fileID string) ([]models.Tag, error) {
	var tags []models.Tag
	err := sqlx.SelectContext(ctx, q.ext, &tags, `
		SELECT t.id, t.name, t.is_default_language, t.is_emoji
		FROM tags t
		JOIN sticker_original_emojis se ON se.tag_id = t.id
		WHERE se.sticker_file_id = $1
		ORDER BY t.id`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("sticker original emojis: %w", err)
	}
	return tags, nil
}

// AddStickerTags attaches tags to a sticker. Already attached tags are
// left alone.
func (q queries) AddStickerTags(ctx context.Context, fileID string, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO sticker_tags (sticker_file_id, tag_id)
		SELECT $1, t.tag_id FROM unnest($2::bigint[]) AS t(tag_id)
		ON CONFLICT DO NOTHING`,
		fileID, pq.Array(tagIDs))
	if err != nil {
		return fmt.Errorf("add sticker tags: %w", err)
	}
	return nil
}

func (q queries) RemoveStickerTags(ctx context.Context, fileID string, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := q.ext.ExecContext(ctx,
		`DELETE FROM sticker_tags WHERE sticker_file_id = $1 AND tag_id = ANY($2::bigint[])`,
		fileID, pq.Array(tagIDs))
	if err != nil {
		return fmt.Errorf("remove sticker tags: %w", err)
	}
	return nil
}

// AddStickerOriginalEmojis records tags as protected original emojis.
// Idempotent.
func (q queries) AddStickerOriginalEmojis(ctx context.Context, fileID string, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO sticker_original_emojis (sticker_file_id, tag_id)
		SELECT $1, t.tag_id FROM unnest($2::bigint[]) AS t(tag_id)
		ON CONFLICT DO NOTHING`,
		fileID, pq.Array(tagIDs))
	if err != nil {
		return fmt.Errorf("add sticker original emojis: %w", err)
	}
	return nil
}
