package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stickerdex/internal/models"
)

const chatColumns = `id, tag_mode, current_sticker_file_id, last_sticker_message_id, is_newsfeed, is_maintenance, created_at`

// GetOrCreateChat loads a chat's session row, creating it on first
// contact. Creation races are resolved by re-querying.
func (q queries) GetOrCreateChat(ctx context.Context, id int64) (models.Chat, error) {
	selectChat := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	var chat models.Chat
	err := sqlx.GetContext(ctx, q.ext, &chat, selectChat, id)
	if err == nil {
		return chat, nil
	}
	if !noRows(err) {
		return models.Chat{}, fmt.Errorf("get chat: %w", err)
	}

	err = sqlx.GetContext(ctx, q.ext, &chat,
		`INSERT INTO chats (id) VALUES ($1) RETURNING `+chatColumns, id)
	if err == nil {
		return chat, nil
	}
	if !isUniqueViolation(err) {
		return models.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, &chat, selectChat, id); err != nil {
		return models.Chat{}, fmt.Errorf("get chat after conflict: %w", err)
	}
	return chat, nil
}

// SaveChatSession persists the session fields owned by the state machine.
func (q queries) SaveChatSession(ctx context.Context, chat *models.Chat) error {
	err := q.execOne(ctx, `
		UPDATE chats
		SET tag_mode = $2,
		    current_sticker_file_id = $3,
		    last_sticker_message_id = $4
		WHERE id = $1`,
		chat.ID, chat.TagMode, chat.CurrentStickerFileID, chat.LastStickerMessageID)
	if err != nil {
		return fmt.Errorf("save chat session: %w", err)
	}
	return nil
}

func (q queries) SetChatNewsfeed(ctx context.Context, id int64, enabled bool) error {
	if err := q.execOne(ctx, `UPDATE chats SET is_newsfeed = $2 WHERE id = $1`, id, enabled); err != nil {
		return fmt.Errorf("set chat newsfeed: %w", err)
	}
	return nil
}

func (q queries) SetChatMaintenance(ctx context.Context, id int64, enabled bool) error {
	if err := q.execOne(ctx, `UPDATE chats SET is_maintenance = $2 WHERE id = $1`, id, enabled); err != nil {
		return fmt.Errorf("set chat maintenance: %w", err)
	}
	return nil
}

func (q queries) NewsfeedChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := sqlx.SelectContext(ctx, q.ext, &chats,
		`SELECT `+chatColumns+` FROM chats WHERE is_newsfeed = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("newsfeed chats: %w", err)
	}
	return chats, nil
}

func (q queries) MaintenanceChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := sqlx.SelectContext(ctx, q.ext, &chats,
		`SELECT `+chatColumns+` FROM chats WHERE is_maintenance = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("maintenance chats: %w", err)
	}
	return chats, nil
}
