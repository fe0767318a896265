package tagging

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stickerdex/core/logger"
	"stickerdex/internal/models"
	"stickerdex/internal/storage"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(nil); err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeStore is an in-memory Datastore covering what the engine touches.
// Unimplemented methods panic through the embedded nil interface.
type fakeStore struct {
	storage.Datastore

	nextTagID   int64
	tagsByKey   map[string]models.Tag
	stickerTags map[string][]models.Tag
	emojiTags   map[string][]models.Tag
	changes     []*models.Change

	inTx         bool
	changeInTx   bool
	mutationInTx bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tagsByKey:   make(map[string]models.Tag),
		stickerTags: make(map[string][]models.Tag),
		emojiTags:   make(map[string][]models.Tag),
	}
}

func tagKey(name string, defaultLanguage, isEmoji bool) string {
	return fmt.Sprintf("%s|%t|%t", name, defaultLanguage, isEmoji)
}

func (f *fakeStore) seedTag(name string, defaultLanguage, isEmoji bool) models.Tag {
	key := tagKey(name, defaultLanguage, isEmoji)
	if tag, ok := f.tagsByKey[key]; ok {
		return tag
	}
	f.nextTagID++
	tag := models.Tag{ID: f.nextTagID, Name: name, DefaultLanguage: defaultLanguage, Emoji: isEmoji}
	f.tagsByKey[key] = tag
	return tag
}

func (f *fakeStore) attach(fileID string, tags ...models.Tag) {
	f.stickerTags[fileID] = appendMissing(f.stickerTags[fileID], tags)
}

func (f *fakeStore) protect(fileID string, tags ...models.Tag) {
	f.emojiTags[fileID] = appendMissing(f.emojiTags[fileID], tags)
}

func appendMissing(list []models.Tag, tags []models.Tag) []models.Tag {
	for _, tag := range tags {
		found := false
		for _, have := range list {
			if have.ID == tag.ID {
				found = true
				break
			}
		}
		if !found {
			list = append(list, tag)
		}
	}
	return list
}

func (f *fakeStore) GetOrCreateTag(_ context.Context, name string, defaultLanguage, isEmoji bool) (models.Tag, error) {
	return f.seedTag(name, defaultLanguage, isEmoji), nil
}

func (f *fakeStore) StickerTags(_ context.Context, fileID string) ([]models.Tag, error) {
	return append([]models.Tag(nil), f.stickerTags[fileID]...), nil
}

func (f *fakeStore) StickerOriginalEmojis(_ context.Context, fileID string) ([]models.Tag, error) {
	return append([]models.Tag(nil), f.emojiTags[fileID]...), nil
}

func (f *fakeStore) AddStickerTags(_ context.Context, fileID string, tagIDs []int64) error {
	if f.inTx {
		f.mutationInTx = true
	}
	f.stickerTags[fileID] = appendMissing(f.stickerTags[fileID], f.lookup(tagIDs))
	return nil
}

func (f *fakeStore) RemoveStickerTags(_ context.Context, fileID string, tagIDs []int64) error {
	if f.inTx {
		f.mutationInTx = true
	}
	drop := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		drop[id] = struct{}{}
	}
	var kept []models.Tag
	for _, tag := range f.stickerTags[fileID] {
		if _, ok := drop[tag.ID]; !ok {
			kept = append(kept, tag)
		}
	}
	f.stickerTags[fileID] = kept
	return nil
}

func (f *fakeStore) AddStickerOriginalEmojis(_ context.Context, fileID string, tagIDs []int64) error {
	f.emojiTags[fileID] = appendMissing(f.emojiTags[fileID], f.lookup(tagIDs))
	return nil
}

func (f *fakeStore) lookup(tagIDs []int64) []models.Tag {
	var tags []models.Tag
	for _, tag := range f.tagsByKey {
		for _, id := range tagIDs {
			if tag.ID == id {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func (f *fakeStore) CreateChange(_ context.Context, change *models.Change) error {
	if f.inTx {
		f.changeInTx = true
	}
	change.ID = int64(len(f.changes) + 1)
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeStore) UserChangeCount(_ context.Context, userID int64) (int, error) {
	count := 0
	for _, change := range f.changes {
		if change.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) InTx(_ context.Context, fn func(storage.Queries) error) error {
	f.inTx = true
	defer func() { f.inTx = false }()
	return fn(f)
}

type fakeNotifier struct {
	milestones []int
	refreshes  []string
}

func (n *fakeNotifier) MilestoneReached(_ context.Context, _ int64, count int) {
	n.milestones = append(n.milestones, count)
}

func (n *fakeNotifier) RefreshFixKeyboard(_ context.Context, _ int64, _ int, stickerFileID string) {
	n.refreshes = append(n.refreshes, stickerFileID)
}

func tagNameSet(tags []models.Tag) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		set[tag.Name] = true
	}
	return set
}

func TestApplyTagsAdditive(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	engine := NewEngine(store, notifier)

	sticker := models.Sticker{FileID: "st1", SetName: "cats"}
	user := models.User{ID: 7, DefaultLanguage: true}
	store.attach(sticker.FileID, store.seedTag("a", true, false), store.seedTag("b", true, false))

	change, err := engine.ApplyTags(context.Background(), sticker, "a c", user, ApplyOptions{})
	require.NoError(t, err)
	require.NotNil(t, change)

	require.Equal(t, []string{"c"}, models.TagNames(change.Added))
	require.Empty(t, change.Removed)
	require.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, tagNameSet(store.stickerTags[sticker.FileID]))
	require.True(t, store.changeInTx, "change must be recorded inside the transaction")
	require.True(t, store.mutationInTx, "tag mutation must happen inside the transaction")
}

func TestApplyTagsReplacePreservesOriginalEmojis(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, &fakeNotifier{})

	sticker := models.Sticker{FileID: "st1", SetName: "cats"}
	user := models.User{ID: 7, DefaultLanguage: true}
	a := store.seedTag("a", true, false)
	b := store.seedTag("b", true, true)
	store.attach(sticker.FileID, a, b)
	store.protect(sticker.FileID, b)

	change, err := engine.ApplyTags(context.Background(), sticker, "c", user, ApplyOptions{Replace: true})
	require.NoError(t, err)
	require.NotNil(t, change)

	require.Equal(t, []string{"c"}, models.TagNames(change.Added))
	require.Equal(t, []string{"a"}, models.TagNames(change.Removed))
	require.Equal(t, map[string]bool{"b": true, "c": true}, tagNameSet(store.stickerTags[sticker.FileID]))
}

func TestApplyTagsNoopWithoutNewTags(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	engine := NewEngine(store, notifier)

	sticker := models.Sticker{FileID: "st1"}
	user := models.User{ID: 7, DefaultLanguage: true}
	store.attach(sticker.FileID, store.seedTag("a", true, false))

	change, err := engine.ApplyTags(context.Background(), sticker, "a", user, ApplyOptions{
		ChatID:               1,
		LastStickerMessageID: 5,
	})
	require.NoError(t, err)
	require.Nil(t, change)
	require.Empty(t, store.changes)
	require.Equal(t, map[string]bool{"a": true}, tagNameSet(store.stickerTags[sticker.FileID]))
	require.Empty(t, notifier.refreshes)
	require.Empty(t, notifier.milestones)
}

func TestApplyTagsEmptyTextIsNoop(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, &fakeNotifier{})

	change, err := engine.ApplyTags(context.Background(), models.Sticker{FileID: "st1"}, "  \n ", models.User{ID: 7}, ApplyOptions{})
	require.NoError(t, err)
	require.Nil(t, change)
	require.Empty(t, store.changes)
}

func TestApplyTagsStripsCommandToken(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, &fakeNotifier{})

	sticker := models.Sticker{FileID: "st1"}
	user := models.User{ID: 7, DefaultLanguage: true}

	change, err := engine.ApplyTags(context.Background(), sticker, "/tag grumpy cat", user, ApplyOptions{})
	require.NoError(t, err)
	require.NotNil(t, change)
	require.Equal(t, []string{"grumpy", "cat"}, models.TagNames(change.Added))

	change, err = engine.ApplyTags(context.Background(), sticker, "/tag", user, ApplyOptions{})
	require.NoError(t, err)
	require.Nil(t, change, "bare command carries no tags")
}

func TestApplyTagsCapsTagCount(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, &fakeNotifier{})

	words := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		words = append(words, fmt.Sprintf("tag%d", i))
	}

	change, err := engine.ApplyTags(context.Background(), models.Sticker{FileID: "st1"}, strings.Join(words, " "), models.User{ID: 7}, ApplyOptions{})
	require.NoError(t, err)
	require.NotNil(t, change)
	require.Len(t, change.Added, maxTagsPerChange)
}

func TestApplyTagsMilestoneNotification(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	engine := NewEngine(store, notifier)

	user := models.User{ID: 7, DefaultLanguage: true}
	for i := 0; i < 9; i++ {
		store.changes = append(store.changes, &models.Change{UserID: user.ID})
	}

	_, err := engine.ApplyTags(context.Background(), models.Sticker{FileID: "st1"}, "cute", user, ApplyOptions{})
	require.NoError(t, err)
	require.Equal(t, []int{10}, notifier.milestones)

	_, err = engine.ApplyTags(context.Background(), models.Sticker{FileID: "st1"}, "fluffy", user, ApplyOptions{})
	require.NoError(t, err)
	require.Equal(t, []int{10}, notifier.milestones, "count 11 is not a milestone")
}

func TestApplyTagsRefreshesPreviousKeyboard(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	engine := NewEngine(store, notifier)

	sticker := models.Sticker{FileID: "st1"}
	user := models.User{ID: 7, DefaultLanguage: true}

	_, err := engine.ApplyTags(context.Background(), sticker, "one", user, ApplyOptions{
		ChatID:               42,
		LastStickerMessageID: 100,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"st1"}, notifier.refreshes)

	_, err = engine.ApplyTags(context.Background(), sticker, "two", user, ApplyOptions{
		ChatID:               42,
		LastStickerMessageID: 100,
		SingleSticker:        true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"st1"}, notifier.refreshes, "single sticker fixes keep the old keyboard")
}

func TestAddOriginalEmojisIdempotent(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, &fakeNotifier{})

	sticker := models.Sticker{FileID: "st1"}
	for i := 0; i < 2; i++ {
		err := engine.AddOriginalEmojis(context.Background(), sticker, []string{"😀", "😾", ""})
		require.NoError(t, err)
	}

	require.Len(t, store.stickerTags[sticker.FileID], 2)
	require.Len(t, store.emojiTags[sticker.FileID], 2)
	for _, tag := range store.emojiTags[sticker.FileID] {
		require.True(t, tag.Emoji)
		require.True(t, tag.DefaultLanguage)
	}
}
