package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stickerdex/internal/models"
)

const changeColumns = `id, user_id, sticker_file_id, is_default_language, chat_id, message_id, reverted, created_at`

// CreateChange inserts the audit record together with its added and
// removed tag links. Callers run this inside InTx alongside the tag
// mutation it describes.
func (q queries) CreateChange(ctx context.Context, change *models.Change) error {
	err := sqlx.GetContext(ctx, q.ext, change, `
		INSERT INTO changes (user_id, sticker_file_id, is_default_language, chat_id, message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+changeColumns,
		change.UserID, change.StickerFileID, change.DefaultLanguage, change.ChatID, change.MessageID)
	if err != nil {
		return fmt.Errorf("create change: %w", err)
	}
	if err := q.linkChangeTags(ctx, "change_added_tags", change.ID, change.Added); err != nil {
		return err
	}
	return q.linkChangeTags(ctx, "change_removed_tags", change.ID, change.Removed)
}

func (q queries) linkChangeTags(ctx context.Context, table string, changeID int64, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO `+table+` (change_id, tag_id)
		SELECT $1, t.tag_id FROM unnest($2::bigint[]) AS t(tag_id)`,
		changeID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("link %s: %w", table, err)
	}
	return nil
}

func (q queries) SetChangeReverted(ctx context.Context, changeID int64, reverted bool) error {
	if err := q.execOne(ctx, `UPDATE changes SET reverted = $2 WHERE id = $1`, changeID, reverted); err != nil {
		return fmt.Errorf("set change reverted: %w", err)
	}
	return nil
}

// UnrevertedChangesByUser returns the user's live changes newest first,
// the order a revert walks them in.
func (q queries) UnrevertedChangesByUser(ctx context.Context, userID int64) ([]models.Change, error) {
	return q.changesByUser(ctx, userID, false, "DESC")
}

// RevertedChangesByUser returns the user's reverted changes oldest
// first, the order an undo re-applies them in.
func (q queries) RevertedChangesByUser(ctx context.Context, userID int64) ([]models.Change, error) {
	return q.changesByUser(ctx, userID, true, "ASC")
}

func (q queries) changesByUser(ctx context.Context, userID int64, reverted bool, direction string) ([]models.Change, error) {
	var changes []models.Change
	err := sqlx.SelectContext(ctx, q.ext, &changes, `
		SELECT `+changeColumns+`
		FROM changes
		WHERE user_id = $1 AND reverted = $2
		ORDER BY id `+direction,
		userID, reverted)
	if err != nil {
		return nil, fmt.Errorf("changes by user: %w", err)
	}
	for i := range changes {
		if changes[i].Added, err = q.changeTagList(ctx, "change_added_tags", changes[i].ID); err != nil {
			return nil, err
		}
		if changes[i].Removed, err = q.changeTagList(ctx, "change_removed_tags", changes[i].ID); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func (q queries) changeTagList(ctx context.Context, table string, changeID int64) ([]models.Tag, error) {
	var tags []models.Tag
	err := sqlx.SelectContext(ctx, q.ext, &tags, `
		SELECT t.id, t.name, t.is_default_language, t.is_emoji
		FROM tags t
		JOIN `+table+` ct ON ct.tag_id = t.id
		WHERE ct.change_id = $1
		ORDER BY t.id`,
		changeID)
	if err != nil {
		return nil, fmt.Errorf("%s for change %d: %w", table, changeID, err)
	}
	return tags, nil
}

// UserChangeCount counts every tagging action the user performed.
// Milestone notifications key off this number.
func (q queries) UserChangeCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count,
		`SELECT COUNT(*) FROM changes WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("user change count: %w", err)
	}
	return count, nil
}

// UserTaggedStickerCount counts distinct stickers the user touched,
// the number reported when a session ends.
func (q queries) UserTaggedStickerCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count,
		`SELECT COUNT(DISTINCT sticker_file_id) FROM changes WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("user tagged sticker count: %w", err)
	}
	return count, nil
}
