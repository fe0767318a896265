// Package models defines the persistent entities of the tagging workflow.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLanguageName is the language every set and user starts with.
const DefaultLanguageName = "english"

// TagMode identifies what an incoming sticker or text message means
// for a chat's tagging session.
type TagMode string

const (
	// ModeNone indicates there is no active tagging session.
	ModeNone TagMode = "none"
	// ModeStickerSet walks every sticker of one set in order.
	ModeStickerSet TagMode = "sticker_set"
	// ModeRandom serves randomly chosen untagged stickers.
	ModeRandom TagMode = "random"
	// ModeSingleSticker is a one-off fix of a single sticker.
	ModeSingleSticker TagMode = "single_sticker"
)

// TaskKind identifies the review work a moderation task carries.
type TaskKind string

const (
	TaskVoteBan     TaskKind = "vote_ban"
	TaskVoteNSFW    TaskKind = "vote_nsfw"
	TaskUserRevert  TaskKind = "user_revert"
	TaskNewLanguage TaskKind = "new_language"
	TaskSetLanguage TaskKind = "set_language"
)

// User is a Telegram user known to the bot.
type User struct {
	ID              int64     `db:"id"`
	Username        string    `db:"username"`
	DefaultLanguage bool      `db:"is_default_language"`
	Banned          bool      `db:"banned"`
	Reverted        bool      `db:"reverted"`
	CreatedAt       time.Time `db:"created_at"`
}

// Chat carries the per-conversation session state. It is mutated only
// through the session state machine.
type Chat struct {
	ID                   int64     `db:"id"`
	TagMode              TagMode   `db:"tag_mode"`
	CurrentStickerFileID *string   `db:"current_sticker_file_id"`
	LastStickerMessageID int       `db:"last_sticker_message_id"`
	Newsfeed             bool      `db:"is_newsfeed"`
	Maintenance          bool      `db:"is_maintenance"`
	CreatedAt            time.Time `db:"created_at"`
}

// CurrentSticker returns the session's sticker file id, or "" if none is set.
func (c *Chat) CurrentSticker() string {
	if c.CurrentStickerFileID == nil {
		return ""
	}
	return *c.CurrentStickerFileID
}

// StickerSet is a named collection of stickers with moderation flags
// and language attribution.
type StickerSet struct {
	Name             string    `db:"name"`
	Title            string    `db:"title"`
	Language         string    `db:"language"`
	DefaultLanguage  bool      `db:"is_default_language"`
	Complete         bool      `db:"complete"`
	CompletelyTagged bool      `db:"completely_tagged"`
	Banned           bool      `db:"banned"`
	NSFW             bool      `db:"nsfw"`
	Furry            bool      `db:"furry"`
	Reviewed         bool      `db:"reviewed"`
	Deluxe           bool      `db:"deluxe"`
	CreatedAt        time.Time `db:"created_at"`
}

// Sticker is a single taggable item belonging to exactly one set.
// Position preserves the set's ordering as reported by Telegram.
type Sticker struct {
	FileID    string    `db:"file_id"`
	SetName   string    `db:"sticker_set_name"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
}

// Tag is a normalized label attachable to stickers, deduplicated by
// (name, language scope, emoji flag).
type Tag struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	DefaultLanguage bool   `db:"is_default_language"`
	Emoji           bool   `db:"is_emoji"`
}

// TagNames extracts the tag names preserving order.
func TagNames(tags []Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// Change is the immutable audit record of one tagging action. Added and
// Removed are loaded alongside the row; the row itself never changes
// except for the Reverted marker used by user reverts.
type Change struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	StickerFileID   string    `db:"sticker_file_id"`
	DefaultLanguage bool      `db:"is_default_language"`
	ChatID          *int64    `db:"chat_id"`
	MessageID       int       `db:"message_id"`
	Reverted        bool      `db:"reverted"`
	CreatedAt       time.Time `db:"created_at"`

	Added   []Tag `db:"-"`
	Removed []Tag `db:"-"`
}

// Task is a moderation work item awaiting a reviewer's decision.
// SetName, UserID and Value are populated depending on the kind.
type Task struct {
	ID        uuid.UUID `db:"id"`
	Kind      TaskKind  `db:"kind"`
	SetName   *string   `db:"sticker_set_name"`
	UserID    *int64    `db:"user_id"`
	Value     *string   `db:"value"`
	Accepted  bool      `db:"accepted"`
	Reviewed  bool      `db:"reviewed"`
	CreatedAt time.Time `db:"created_at"`
}

// Language is a reviewer-accepted tagging language.
type Language struct {
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}
