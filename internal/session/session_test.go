package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stickerdex/core/logger"
	"stickerdex/internal/locales"
	"stickerdex/internal/models"
	"stickerdex/internal/storage"
	"stickerdex/internal/tagging"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(nil); err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func testMessages(t *testing.T) *locales.Messages {
	t.Helper()
	bundle, err := locales.NewBundle()
	require.NoError(t, err)
	return locales.NewMessages(bundle, "en")
}

// fakeStore covers the session manager's persistence needs in memory.
type fakeStore struct {
	storage.Datastore

	chats         map[int64]models.Chat
	sets          map[string]models.StickerSet
	stickersBySet map[string][]models.Sticker
	stickers      map[string]models.Sticker
	tagsByScope   map[string][]models.Tag

	random    []models.Sticker
	taggedSet []string
	taggedCnt int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:         make(map[int64]models.Chat),
		sets:          make(map[string]models.StickerSet),
		stickersBySet: make(map[string][]models.Sticker),
		stickers:      make(map[string]models.Sticker),
		tagsByScope:   make(map[string][]models.Tag),
	}
}

func (f *fakeStore) addSet(set models.StickerSet, stickers ...models.Sticker) {
	f.sets[set.Name] = set
	for _, s := range stickers {
		s.SetName = set.Name
		f.stickersBySet[set.Name] = append(f.stickersBySet[set.Name], s)
		f.stickers[s.FileID] = s
	}
}

func (f *fakeStore) GetOrCreateChat(_ context.Context, id int64) (models.Chat, error) {
	if chat, ok := f.chats[id]; ok {
		return chat, nil
	}
	chat := models.Chat{ID: id, TagMode: models.ModeNone}
	f.chats[id] = chat
	return chat, nil
}

func (f *fakeStore) SaveChatSession(_ context.Context, chat *models.Chat) error {
	f.chats[chat.ID] = *chat
	return nil
}

func (f *fakeStore) GetOrCreateStickerSet(_ context.Context, name, title string) (models.StickerSet, bool, error) {
	if set, ok := f.sets[name]; ok {
		return set, false, nil
	}
	set := models.StickerSet{Name: name, Title: title}
	f.sets[name] = set
	return set, true, nil
}

func (f *fakeStore) GetStickerSet(_ context.Context, name string) (models.StickerSet, error) {
	set, ok := f.sets[name]
	if !ok {
		return models.StickerSet{}, fmt.Errorf("sticker set %q: %w", name, storage.ErrNotFound)
	}
	return set, nil
}

func (f *fakeStore) StickersInSet(_ context.Context, setName string) ([]models.Sticker, error) {
	return f.stickersBySet[setName], nil
}

func (f *fakeStore) GetSticker(_ context.Context, fileID string) (models.Sticker, error) {
	sticker, ok := f.stickers[fileID]
	if !ok {
		return models.Sticker{}, fmt.Errorf("sticker %s: %w", fileID, storage.ErrNotFound)
	}
	return sticker, nil
}

func (f *fakeStore) StickerTagsForLanguage(_ context.Context, fileID string, defaultLanguage bool) ([]models.Tag, error) {
	return f.tagsByScope[fmt.Sprintf("%s|%t", fileID, defaultLanguage)], nil
}

func (f *fakeStore) MarkStickerSetCompletelyTagged(_ context.Context, name string) error {
	set := f.sets[name]
	set.CompletelyTagged = true
	f.sets[name] = set
	f.taggedSet = append(f.taggedSet, name)
	return nil
}

func (f *fakeStore) RandomEligibleSticker(_ context.Context) (models.Sticker, error) {
	if len(f.random) == 0 {
		return models.Sticker{}, fmt.Errorf("eligible sticker: %w", storage.ErrNotFound)
	}
	sticker := f.random[0]
	f.random = f.random[1:]
	return sticker, nil
}

func (f *fakeStore) UserTaggedStickerCount(_ context.Context, _ int64) (int, error) {
	return f.taggedCnt, nil
}

type promptCall struct {
	chatID int64
	fileID string
	text   string
}

type fakeTransport struct {
	texts   []string
	prompts []promptCall
	nextID  int
}

func (f *fakeTransport) SendText(_ context.Context, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) SendStickerPrompt(_ context.Context, chatID int64, sticker models.Sticker, text string) (int, error) {
	f.nextID++
	f.prompts = append(f.prompts, promptCall{chatID: chatID, fileID: sticker.FileID, text: text})
	return 100 + f.nextID, nil
}

type fakeTagger struct {
	change   *models.Change
	err      error
	lastOpts tagging.ApplyOptions
	lastText string
}

func (f *fakeTagger) ApplyTags(_ context.Context, _ models.Sticker, text string, _ models.User, opts tagging.ApplyOptions) (*models.Change, error) {
	f.lastOpts = opts
	f.lastText = text
	return f.change, f.err
}

type fakeImporter struct {
	requests []string
}

func (f *fakeImporter) RequestImport(_ context.Context, _ int64, setName string) {
	f.requests = append(f.requests, setName)
}

type fixture struct {
	store     *fakeStore
	transport *fakeTransport
	tagger    *fakeTagger
	importer  *fakeImporter
	manager   *Manager
}

func newFixture(t *testing.T) *fixture {
	store := newFakeStore()
	transport := &fakeTransport{}
	tagger := &fakeTagger{}
	importer := &fakeImporter{}
	return &fixture{
		store:     store,
		transport: transport,
		tagger:    tagger,
		importer:  importer,
		manager:   NewManager(store, tagger, transport, importer, testMessages(t)),
	}
}

var testUser = models.User{ID: 7, DefaultLanguage: true}

func TestEnterStickerSetModeNotReady(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "slowset", Complete: false})

	err := fx.manager.EnterStickerSetMode(context.Background(), 1, testUser, "slowset")
	require.ErrorIs(t, err, ErrSetNotReady)

	require.Equal(t, models.ModeNone, fx.store.chats[1].TagMode, "aborted entry must not change mode")
	require.Equal(t, []string{"slowset"}, fx.importer.requests)
	require.Len(t, fx.transport.texts, 1)
	require.Contains(t, fx.transport.texts[0], "currently being added")
}

func TestEnterStickerSetModeEmptyCompleteSet(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "hollow", Complete: true})

	err := fx.manager.EnterStickerSetMode(context.Background(), 1, testUser, "hollow")
	require.ErrorIs(t, err, ErrSetNotReady)
	require.Equal(t, models.ModeNone, fx.store.chats[1].TagMode)
	require.Equal(t, []string{"hollow"}, fx.importer.requests, "empty set triggers a re-import")
}

func TestEnterStickerSetModeUnknownSetIsCreated(t *testing.T) {
	fx := newFixture(t)

	err := fx.manager.EnterStickerSetMode(context.Background(), 1, testUser, "newset")
	require.ErrorIs(t, err, ErrSetNotReady)
	_, ok := fx.store.sets["newset"]
	require.True(t, ok)
	require.Equal(t, []string{"newset"}, fx.importer.requests)
}

func TestEnterStickerSetMode(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Title: "Cats", Complete: true, DefaultLanguage: true},
		models.Sticker{FileID: "s1", Position: 0},
		models.Sticker{FileID: "s2", Position: 1},
	)

	err := fx.manager.EnterStickerSetMode(context.Background(), 1, testUser, "cats")
	require.NoError(t, err)

	chat := fx.store.chats[1]
	require.Equal(t, models.ModeStickerSet, chat.TagMode)
	require.Equal(t, "s1", chat.CurrentSticker())
	require.NotZero(t, chat.LastStickerMessageID)
	require.Len(t, fx.transport.prompts, 1)
	require.Equal(t, "s1", fx.transport.prompts[0].fileID)
	require.Contains(t, fx.transport.prompts[0].text, "no english tags")
}

func TestAdvanceMovesToNextSticker(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true, DefaultLanguage: true},
		models.Sticker{FileID: "s1", Position: 0},
		models.Sticker{FileID: "s2", Position: 1},
	)
	current := "s1"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeStickerSet, CurrentStickerFileID: &current}

	err := fx.manager.Advance(context.Background(), 1, testUser)
	require.NoError(t, err)
	updated := fx.store.chats[1]
	require.Equal(t, "s2", updated.CurrentSticker())
	require.Len(t, fx.transport.prompts, 1)
	require.Equal(t, "s2", fx.transport.prompts[0].fileID)
}

func TestAdvanceAtSetEndCompletesAndCancels(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true, DefaultLanguage: true},
		models.Sticker{FileID: "s1", Position: 0},
		models.Sticker{FileID: "s2", Position: 1},
	)
	current := "s2"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeStickerSet, CurrentStickerFileID: &current, LastStickerMessageID: 42}
	fx.store.taggedCnt = 5

	err := fx.manager.Advance(context.Background(), 1, testUser)
	require.NoError(t, err)

	require.Equal(t, []string{"cats"}, fx.store.taggedSet)
	chat := fx.store.chats[1]
	require.Equal(t, models.ModeNone, chat.TagMode)
	require.Nil(t, chat.CurrentStickerFileID)
	require.Zero(t, chat.LastStickerMessageID)
	require.Len(t, fx.transport.texts, 2)
	require.Contains(t, fx.transport.texts[0], "tagged now")
	require.Contains(t, fx.transport.texts[1], "tagged 5 stickers")
}

func TestAdvanceMissingCurrentCountsAsSetEnd(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true},
		models.Sticker{FileID: "s1", Position: 0},
	)
	// Current sticker exists but is no longer part of its set's sequence.
	fx.store.stickers["ghost"] = models.Sticker{FileID: "ghost", SetName: "cats"}
	current := "ghost"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeStickerSet, CurrentStickerFileID: &current}

	err := fx.manager.Advance(context.Background(), 1, testUser)
	require.NoError(t, err)
	require.Equal(t, []string{"cats"}, fx.store.taggedSet)
	require.Equal(t, models.ModeNone, fx.store.chats[1].TagMode)
}

func TestAdvanceRandomPicksEligible(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "dogs", Title: "Dogs", Complete: true, DefaultLanguage: true},
		models.Sticker{FileID: "d1", Position: 0},
	)
	fx.store.random = []models.Sticker{{FileID: "d1", SetName: "dogs"}}
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeRandom}

	err := fx.manager.Advance(context.Background(), 1, testUser)
	require.NoError(t, err)
	updated := fx.store.chats[1]
	require.Equal(t, "d1", updated.CurrentSticker())
	require.Len(t, fx.transport.prompts, 1)
	require.Contains(t, fx.transport.prompts[0].text, "From sticker set: Dogs (dogs)")
}

func TestAdvanceRandomExhaustedCancels(t *testing.T) {
	fx := newFixture(t)
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeRandom}
	fx.store.taggedCnt = 3

	err := fx.manager.Advance(context.Background(), 1, testUser)
	require.ErrorIs(t, err, ErrNoEligibleSticker)
	require.Equal(t, models.ModeNone, fx.store.chats[1].TagMode)
	require.Len(t, fx.transport.texts, 2)
	require.Contains(t, fx.transport.texts[0], "all stickers are tagged")
	require.Contains(t, fx.transport.texts[1], "tagged 3 stickers")
}

func TestAdvanceIsNoopOutsideWalkModes(t *testing.T) {
	fx := newFixture(t)
	for _, mode := range []models.TagMode{models.ModeNone, models.ModeSingleSticker} {
		fx.store.chats[1] = models.Chat{ID: 1, TagMode: mode}
		require.NoError(t, fx.manager.Advance(context.Background(), 1, testUser))
		require.Equal(t, mode, fx.store.chats[1].TagMode)
	}
	require.Empty(t, fx.transport.prompts)
	require.Empty(t, fx.transport.texts)
}

func TestCancelFromNoneIsSafe(t *testing.T) {
	fx := newFixture(t)

	err := fx.manager.Cancel(context.Background(), 1, testUser)
	require.NoError(t, err)
	require.Empty(t, fx.transport.texts)
	require.Equal(t, models.ModeNone, fx.store.chats[1].TagMode)
}

func TestCancelReportsCountDuringWalk(t *testing.T) {
	fx := newFixture(t)
	current := "s1"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeRandom, CurrentStickerFileID: &current, LastStickerMessageID: 9}
	fx.store.taggedCnt = 12

	err := fx.manager.Cancel(context.Background(), 1, testUser)
	require.NoError(t, err)

	chat := fx.store.chats[1]
	require.Equal(t, models.ModeNone, chat.TagMode)
	require.Nil(t, chat.CurrentStickerFileID)
	require.Zero(t, chat.LastStickerMessageID)
	require.Len(t, fx.transport.texts, 1)
	require.Contains(t, fx.transport.texts[0], "tagged 12 stickers")
}

func TestHandleTextAppliesAndRequestsAdvance(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true}, models.Sticker{FileID: "s1"})
	current := "s1"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeStickerSet, CurrentStickerFileID: &current, LastStickerMessageID: 77}
	fx.tagger.change = &models.Change{ID: 1}

	advance, err := fx.manager.HandleText(context.Background(), 1, testUser, 555, "grumpy cat")
	require.NoError(t, err)
	require.True(t, advance)
	require.Equal(t, "grumpy cat", fx.tagger.lastText)
	require.False(t, fx.tagger.lastOpts.Replace)
	require.False(t, fx.tagger.lastOpts.SingleSticker)
	require.Equal(t, int64(1), fx.tagger.lastOpts.ChatID)
	require.Equal(t, 555, fx.tagger.lastOpts.MessageID)
	require.Equal(t, 77, fx.tagger.lastOpts.LastStickerMessageID)
}

func TestHandleTextNoopDoesNotAdvance(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true}, models.Sticker{FileID: "s1"})
	current := "s1"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeStickerSet, CurrentStickerFileID: &current}
	fx.tagger.change = nil

	advance, err := fx.manager.HandleText(context.Background(), 1, testUser, 1, "dup")
	require.NoError(t, err)
	require.False(t, advance)
	require.Equal(t, models.ModeStickerSet, fx.store.chats[1].TagMode)
}

func TestHandleTextSingleStickerReplacesAndEnds(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true}, models.Sticker{FileID: "s1"})
	current := "s1"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeSingleSticker, CurrentStickerFileID: &current}
	fx.tagger.change = &models.Change{ID: 1}

	advance, err := fx.manager.HandleText(context.Background(), 1, testUser, 1, "fixed tags")
	require.NoError(t, err)
	require.False(t, advance)
	require.True(t, fx.tagger.lastOpts.Replace)
	require.True(t, fx.tagger.lastOpts.SingleSticker)
	require.Equal(t, models.ModeNone, fx.store.chats[1].TagMode)
	require.Empty(t, fx.transport.texts, "one-off fixes end without a count message")
}

func TestHandleTextOutsideSessionIsNoop(t *testing.T) {
	fx := newFixture(t)

	advance, err := fx.manager.HandleText(context.Background(), 1, testUser, 1, "hello")
	require.NoError(t, err)
	require.False(t, advance)
}

func TestFixStickerForcesSingleStickerMode(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true, DefaultLanguage: true}, models.Sticker{FileID: "s1"})

	err := fx.manager.FixSticker(context.Background(), 1, testUser, "s1")
	require.NoError(t, err)

	chat := fx.store.chats[1]
	require.Equal(t, models.ModeSingleSticker, chat.TagMode)
	require.Equal(t, "s1", chat.CurrentSticker())
	require.Len(t, fx.transport.prompts, 1)
}

func TestFixStickerKeepsWalkMode(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true, DefaultLanguage: true},
		models.Sticker{FileID: "s1"}, models.Sticker{FileID: "s2"},
	)
	current := "s2"
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeStickerSet, CurrentStickerFileID: &current}

	err := fx.manager.FixSticker(context.Background(), 1, testUser, "s1")
	require.NoError(t, err)
	updated := fx.store.chats[1]
	require.Equal(t, models.ModeStickerSet, updated.TagMode)
	require.Equal(t, "s1", updated.CurrentSticker())
}

func TestContinueSetReplacesSession(t *testing.T) {
	fx := newFixture(t)
	fx.store.addSet(models.StickerSet{Name: "cats", Complete: true, DefaultLanguage: true},
		models.Sticker{FileID: "s1"}, models.Sticker{FileID: "s2"},
	)
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeRandom, LastStickerMessageID: 3}

	err := fx.manager.ContinueSet(context.Background(), 1, testUser, "s2")
	require.NoError(t, err)

	chat := fx.store.chats[1]
	require.Equal(t, models.ModeStickerSet, chat.TagMode)
	require.Equal(t, "s2", chat.CurrentSticker())
	require.Len(t, fx.transport.prompts, 1)
	require.Equal(t, "s2", fx.transport.prompts[0].fileID)
}

func TestSetContextOnlyMovesThePointer(t *testing.T) {
	fx := newFixture(t)
	fx.store.chats[1] = models.Chat{ID: 1, TagMode: models.ModeNone}

	err := fx.manager.SetContext(context.Background(), 1, "s9")
	require.NoError(t, err)

	chat := fx.store.chats[1]
	require.Equal(t, "s9", chat.CurrentSticker())
	require.Equal(t, models.ModeNone, chat.TagMode, "pointing at a sticker must not open a session")
	require.Empty(t, fx.transport.prompts)
	require.Empty(t, fx.transport.texts)
}

func TestPromptText(t *testing.T) {
	msgs := testMessages(t)
	set := models.StickerSet{Name: "cats", Title: "Cats"}

	tags := []models.Tag{{Name: "grumpy"}, {Name: "cat"}}
	text := PromptText(msgs, set, tags, true, false)
	require.Contains(t, text, "Current english tags are")
	require.Contains(t, text, "grumpy, cat")

	text = PromptText(msgs, set, nil, false, false)
	require.Contains(t, text, "no international tags")
	require.False(t, strings.Contains(text, "From sticker set"))

	text = PromptText(msgs, set, nil, true, true)
	require.True(t, strings.HasPrefix(text, "From sticker set: Cats (cats)"))
}
