// Package storage persists the tagging workflow's entities in Postgres.
//
// Store wraps a pooled sqlx handle. InTx exposes the same query surface
// inside a single transaction so tag mutations and their audit records
// commit as one unit. Natural-key get-or-create relies on unique
// constraints: losing a concurrent insert race is resolved by
// re-querying, never surfaced to callers.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stickerdex/internal/models"
)

var (
	// ErrNotFound reports a missing row for a known key.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a natural-key collision on insert.
	ErrConflict = errors.New("already exists")
)

// Queries is the query surface shared by the pooled store and a
// transaction handle.
type Queries interface {
	// Users.
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetOrCreateUser(ctx context.Context, id int64, username string) (models.User, error)
	SetUserBanned(ctx context.Context, id int64, banned bool) error
	SetUserReverted(ctx context.Context, id int64, reverted bool) error
	SetUserDefaultLanguage(ctx context.Context, id int64, defaultLanguage bool) error

	// Chats.
	GetOrCreateChat(ctx context.Context, id int64) (models.Chat, error)
	SaveChatSession(ctx context.Context, chat *models.Chat) error
	SetChatNewsfeed(ctx context.Context, id int64, enabled bool) error
	SetChatMaintenance(ctx context.Context, id int64, enabled bool) error
	NewsfeedChats(ctx context.Context) ([]models.Chat, error)
	MaintenanceChats(ctx context.Context) ([]models.Chat, error)

	// Sticker sets.
	GetStickerSet(ctx context.Context, name string) (models.StickerSet, error)
	GetOrCreateStickerSet(ctx context.Context, name, title string) (models.StickerSet, bool, error)
	UpdateStickerSetTitle(ctx context.Context, name, title string) error
	MarkStickerSetComplete(ctx context.Context, name string) error
	MarkStickerSetCompletelyTagged(ctx context.Context, name string) error
	SetStickerSetBanned(ctx context.Context, name string, banned bool) error
	SetStickerSetNSFW(ctx context.Context, name string, nsfw bool) error
	SetStickerSetFurry(ctx context.Context, name string, furry bool) error
	SetStickerSetReviewed(ctx context.Context, name string, reviewed bool) error
	SetStickerSetDeluxe(ctx context.Context, name string, deluxe bool) error
	SetStickerSetLanguage(ctx context.Context, name, language string, defaultLanguage bool) error
	NextUnreviewedSet(ctx context.Context) (models.StickerSet, error)

	// Stickers.
	GetSticker(ctx context.Context, fileID string) (models.Sticker, error)
	UpsertSticker(ctx context.Context, sticker models.Sticker) error
	StickersInSet(ctx context.Context, setName string) ([]models.Sticker, error)
	RandomEligibleSticker(ctx context.Context) (models.Sticker, error)
	StickerTags(ctx context.Context, fileID string) ([]models.Tag, error)
	StickerTagsForLanguage(ctx context.Context, fileID string, defaultLanguage bool) ([]models.Tag, error)
	StickerOriginalEmojis(ctx context.Context, fileID string) ([]models.Tag, error)
	AddStickerTags(ctx context.Context, fileID string, tagIDs []int64) error
	RemoveStickerTags(ctx context.Context, fileID string, tagIDs []int64) error
	AddStickerOriginalEmojis(ctx context.Context, fileID string, tagIDs []int64) error

	// Tags.
	GetOrCreateTag(ctx context.Context, name string, defaultLanguage, isEmoji bool) (models.Tag, error)

	// Changes.
	CreateChange(ctx context.Context, change *models.Change) error
	SetChangeReverted(ctx context.Context, changeID int64, reverted bool) error
	UnrevertedChangesByUser(ctx context.Context, userID int64) ([]models.Change, error)
	RevertedChangesByUser(ctx context.Context, userID int64) ([]models.Change, error)
	UserChangeCount(ctx context.Context, userID int64) (int, error)
	UserTaggedStickerCount(ctx context.Context, userID int64) (int, error)

	// Tasks.
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (models.Task, error)
	SetTaskReviewed(ctx context.Context, id uuid.UUID, accepted bool) error
	NextUnreviewedTask(ctx context.Context) (models.Task, error)

	// Languages.
	GetLanguage(ctx context.Context, name string) (models.Language, error)
	CreateLanguage(ctx context.Context, name string) error
	DeleteLanguage(ctx context.Context, name string) error
	ListLanguages(ctx context.Context) ([]models.Language, error)

	// Search.
	SearchStickers(ctx context.Context, params SearchParams) ([]SearchResult, error)
}

// Datastore is the full persistence contract consumed by the workflow
// engines.
type Datastore interface {
	Queries
	InTx(ctx context.Context, fn func(Queries) error) error
}

// queries implements Queries against either a pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
}

// Store is the pooled Postgres-backed Datastore.
type Store struct {
	queries
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{queries: queries{ext: db}, db: db}
}

// InTx runs fn inside a single transaction and rolls back when fn or
// the commit fails.
func (s *Store) InTx(ctx context.Context, fn func(Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(queries{ext: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation matches the Postgres unique_violation error class.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// execOne runs an update that must hit exactly one row.
func (q queries) execOne(ctx context.Context, query string, args ...any) error {
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var (
	_ Datastore = (*Store)(nil)
	_ Queries   = queries{}
)
