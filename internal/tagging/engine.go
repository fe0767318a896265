package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"stickerdex/core/logger"
	"stickerdex/internal/models"
	"stickerdex/internal/storage"
)

// maxTagsPerChange caps how many tags one message may attach, on top of
// the normalizer's own limit. Keeps tag spam cheap to clean up.
const maxTagsPerChange = 10

// milestones are the lifetime change counts that earn a thank-you note.
var milestones = map[int]struct{}{
	10: {}, 25: {}, 50: {}, 100: {}, 250: {},
	500: {}, 1000: {}, 2500: {}, 5000: {}, 10000: {},
}

// Notifier delivers the engine's fire-and-forget UI side effects.
// Implementations log delivery failures; nothing here may roll back a
// committed change.
type Notifier interface {
	// MilestoneReached congratulates a user on their lifetime change count.
	MilestoneReached(ctx context.Context, userID int64, count int)
	// RefreshFixKeyboard swaps a previous prompt's buttons for a
	// "fix this sticker" affordance.
	RefreshFixKeyboard(ctx context.Context, chatID int64, messageID int, stickerFileID string)
}

// ApplyOptions steers one tagging action.
type ApplyOptions struct {
	// Replace swaps the sticker's tag set instead of appending to it.
	Replace bool
	// SingleSticker marks a one-off fix, which skips the previous
	// prompt's keyboard refresh.
	SingleSticker bool
	// ChatID and MessageID record where the tagging text came from.
	ChatID    int64
	MessageID int
	// LastStickerMessageID is the previous prompt eligible for the
	// fix-keyboard refresh. Zero means none.
	LastStickerMessageID int
}

// Engine turns incoming text into persisted, revertible tag changes.
type Engine struct {
	store    storage.Datastore
	notifier Notifier
}

func NewEngine(store storage.Datastore, notifier Notifier) *Engine {
	return &Engine{store: store, notifier: notifier}
}

// ApplyTags tags one sticker with the given text. It returns the
// recorded change, or nil when the text contributed nothing new. Tag
// rows created while resolving text persist even on a no-op; the tag
// attachment and its audit record commit as one transaction.
func (e *Engine) ApplyTags(ctx context.Context, sticker models.Sticker, text string, user models.User, opts ApplyOptions) (*models.Change, error) {
	names := Normalize(stripTagCommand(text), DefaultTagLimit)
	if len(names) > maxTagsPerChange {
		names = names[:maxTagsPerChange]
	}
	if len(names) == 0 {
		return nil, nil
	}

	incoming := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag, err := e.store.GetOrCreateTag(ctx, name, user.DefaultLanguage, false)
		if err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		incoming = append(incoming, tag)
	}

	current, err := e.store.StickerTags(ctx, sticker.FileID)
	if err != nil {
		return nil, fmt.Errorf("load sticker tags: %w", err)
	}

	added := tagsNotIn(incoming, current)
	if len(added) == 0 {
		return nil, nil
	}

	var removed []models.Tag
	if opts.Replace {
		emojis, err := e.store.StickerOriginalEmojis(ctx, sticker.FileID)
		if err != nil {
			return nil, fmt.Errorf("load original emojis: %w", err)
		}
		// Protected emojis survive a replacement.
		kept := mergeTags(incoming, emojis)
		removed = tagsNotIn(current, kept)
	}

	change := &models.Change{
		UserID:          user.ID,
		StickerFileID:   sticker.FileID,
		DefaultLanguage: user.DefaultLanguage,
		MessageID:       opts.MessageID,
		Added:           added,
		Removed:         removed,
	}
	if opts.ChatID != 0 {
		chatID := opts.ChatID
		change.ChatID = &chatID
	}

	err = e.store.InTx(ctx, func(q storage.Queries) error {
		if err := q.RemoveStickerTags(ctx, sticker.FileID, tagIDs(removed)); err != nil {
			return err
		}
		if err := q.AddStickerTags(ctx, sticker.FileID, tagIDs(added)); err != nil {
			return err
		}
		return q.CreateChange(ctx, change)
	})
	if err != nil {
		return nil, fmt.Errorf("apply tags: %w", err)
	}

	logger.Tagging.Info("tags applied",
		slog.String("event", "tagging.apply"),
		slog.String("sticker", sticker.FileID),
		slog.Int64("user_id", user.ID),
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
		slog.Bool("replace", opts.Replace),
	)

	e.notifyMilestone(ctx, user.ID)

	if !opts.SingleSticker && opts.ChatID != 0 && opts.LastStickerMessageID != 0 {
		e.notifier.RefreshFixKeyboard(ctx, opts.ChatID, opts.LastStickerMessageID, sticker.FileID)
	}
	return change, nil
}

// AddOriginalEmojis attaches a sticker's own emojis as protected tags.
// Safe to call repeatedly, the importer re-runs it on every pass.
func (e *Engine) AddOriginalEmojis(ctx context.Context, sticker models.Sticker, emojis []string) error {
	ids := make([]int64, 0, len(emojis))
	for _, emoji := range emojis {
		emoji = strings.TrimSpace(emoji)
		if emoji == "" {
			continue
		}
		tag, err := e.store.GetOrCreateTag(ctx, emoji, true, true)
		if err != nil {
			return fmt.Errorf("resolve emoji tag %q: %w", emoji, err)
		}
		ids = append(ids, tag.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := e.store.AddStickerTags(ctx, sticker.FileID, ids); err != nil {
		return fmt.Errorf("attach emoji tags: %w", err)
	}
	if err := e.store.AddStickerOriginalEmojis(ctx, sticker.FileID, ids); err != nil {
		return fmt.Errorf("protect emoji tags: %w", err)
	}
	return nil
}

func (e *Engine) notifyMilestone(ctx context.Context, userID int64) {
	count, err := e.store.UserChangeCount(ctx, userID)
	if err != nil {
		logger.Tagging.Warn("milestone check failed",
			slog.String("event", "tagging.milestone"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return
	}
	if _, ok := milestones[count]; !ok {
		return
	}
	e.notifier.MilestoneReached(ctx, userID, count)
}

// stripTagCommand drops a leading /tag-style command token so the
// command's arguments read as plain tag text.
func stripTagCommand(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(strings.ToLower(trimmed), "/tag") {
		return text
	}
	_, rest, found := strings.Cut(trimmed, " ")
	if !found {
		return ""
	}
	return rest
}

func tagIDs(tags []models.Tag) []int64 {
	if len(tags) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// tagsNotIn returns the tags from list absent from exclude, preserving
// list order.
func tagsNotIn(list, exclude []models.Tag) []models.Tag {
	seen := make(map[int64]struct{}, len(exclude))
	for _, t := range exclude {
		seen[t.ID] = struct{}{}
	}
	var out []models.Tag
	for _, t := range list {
		if _, ok := seen[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// mergeTags unions two tag lists, deduplicating by id and keeping the
// first list's order up front.
func mergeTags(a, b []models.Tag) []models.Tag {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]models.Tag, 0, len(a)+len(b))
	for _, list := range [][]models.Tag{a, b} {
		for _, t := range list {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
