package moderation

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stickerdex/core/logger"
	"stickerdex/internal/callback"
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

// fakeStore keeps the moderation engine's world in memory.
type fakeStore struct {
	storage.Datastore

	sets      map[string]models.StickerSet
	setOrder  []string
	tasks     map[uuid.UUID]models.Task
	users     map[int64]models.User
	languages map[string]bool
	changes   []models.Change
	tags      map[string]map[int64]bool

	txCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sets:      make(map[string]models.StickerSet),
		tasks:     make(map[uuid.UUID]models.Task),
		users:     make(map[int64]models.User),
		languages: make(map[string]bool),
		tags:      make(map[string]map[int64]bool),
	}
}

func (f *fakeStore) addSet(set models.StickerSet) {
	f.sets[set.Name] = set
	f.setOrder = append(f.setOrder, set.Name)
}

func (f *fakeStore) stickerTagIDs(fileID string) []int64 {
	var ids []int64
	for id := range f.tags[fileID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fakeStore) InTx(_ context.Context, fn func(storage.Queries) error) error {
	f.txCalls++
	return fn(f)
}

func (f *fakeStore) GetStickerSet(_ context.Context, name string) (models.StickerSet, error) {
	set, ok := f.sets[name]
	if !ok {
		return models.StickerSet{}, fmt.Errorf("sticker set %q: %w", name, storage.ErrNotFound)
	}
	return set, nil
}

func (f *fakeStore) setFlag(name string, apply func(*models.StickerSet)) error {
	set, ok := f.sets[name]
	if !ok {
		return storage.ErrNotFound
	}
	apply(&set)
	f.sets[name] = set
	return nil
}

func (f *fakeStore) SetStickerSetBanned(_ context.Context, name string, banned bool) error {
	return f.setFlag(name, func(s *models.StickerSet) { s.Banned = banned })
}

func (f *fakeStore) SetStickerSetNSFW(_ context.Context, name string, nsfw bool) error {
	return f.setFlag(name, func(s *models.StickerSet) { s.NSFW = nsfw })
}

func (f *fakeStore) SetStickerSetFurry(_ context.Context, name string, furry bool) error {
	return f.setFlag(name, func(s *models.StickerSet) { s.Furry = furry })
}

func (f *fakeStore) SetStickerSetReviewed(_ context.Context, name string, reviewed bool) error {
	return f.setFlag(name, func(s *models.StickerSet) { s.Reviewed = reviewed })
}

func (f *fakeStore) SetStickerSetLanguage(_ context.Context, name, language string, defaultLanguage bool) error {
	return f.setFlag(name, func(s *models.StickerSet) {
		s.Language = language
		s.DefaultLanguage = defaultLanguage
	})
}

func (f *fakeStore) NextUnreviewedSet(_ context.Context) (models.StickerSet, error) {
	for _, name := range f.setOrder {
		set := f.sets[name]
		if set.Complete && !set.Reviewed {
			return set, nil
		}
	}
	return models.StickerSet{}, fmt.Errorf("review queue: %w", storage.ErrNotFound)
}

func (f *fakeStore) GetTask(_ context.Context, id uuid.UUID) (models.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return task, nil
}

func (f *fakeStore) SetTaskReviewed(_ context.Context, id uuid.UUID, accepted bool) error {
	task, ok := f.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	task.Reviewed = true
	task.Accepted = accepted
	f.tasks[id] = task
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	return user, nil
}

func (f *fakeStore) SetUserBanned(_ context.Context, id int64, banned bool) error {
	user := f.users[id]
	user.Banned = banned
	f.users[id] = user
	return nil
}

func (f *fakeStore) SetUserReverted(_ context.Context, id int64, reverted bool) error {
	user := f.users[id]
	user.Reverted = reverted
	f.users[id] = user
	return nil
}

func (f *fakeStore) CreateLanguage(_ context.Context, name string) error {
	if f.languages[name] {
		return fmt.Errorf("language %q: %w", name, storage.ErrConflict)
	}
	f.languages[name] = true
	return nil
}

func (f *fakeStore) DeleteLanguage(_ context.Context, name string) error {
	if !f.languages[name] {
		return fmt.Errorf("language %q: %w", name, storage.ErrNotFound)
	}
	delete(f.languages, name)
	return nil
}

func (f *fakeStore) UnrevertedChangesByUser(_ context.Context, userID int64) ([]models.Change, error) {
	return f.changesFor(userID, false, true), nil
}

func (f *fakeStore) RevertedChangesByUser(_ context.Context, userID int64) ([]models.Change, error) {
	return f.changesFor(userID, true, false), nil
}

func (f *fakeStore) changesFor(userID int64, reverted, newestFirst bool) []models.Change {
	var out []models.Change
	for _, c := range f.changes {
		if c.UserID == userID && c.Reverted == reverted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeStore) SetChangeReverted(_ context.Context, changeID int64, reverted bool) error {
	for i := range f.changes {
		if f.changes[i].ID == changeID {
			f.changes[i].Reverted = reverted
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) AddStickerTags(_ context.Context, fileID string, tagIDs []int64) error {
	if f.tags[fileID] == nil {
		f.tags[fileID] = make(map[int64]bool)
	}
	for _, id := range tagIDs {
		f.tags[fileID][id] = true
	}
	return nil
}

func (f *fakeStore) RemoveStickerTags(_ context.Context, fileID string, tagIDs []int64) error {
	for _, id := range tagIDs {
		delete(f.tags[fileID], id)
	}
	return nil
}

func TestToggleSetFlagSymmetry(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "cool_set"})
	engine := NewEngine(store)
	ctx := context.Background()

	press := func(data string) models.StickerSet {
		t.Helper()
		decoded, err := callback.Decode(data)
		require.NoError(t, err)
		set, err := engine.ToggleSetFlag(ctx, decoded.Action, decoded.Payload, decoded.Outcome)
		require.NoError(t, err)
		return set
	}

	button := findButton(t, NewsfeedKeyboard(store.sets["cool_set"]), "Ban this set")
	set := press(button.Data)
	require.True(t, set.Banned)

	button = findButton(t, NewsfeedKeyboard(set), "Revert ban tag")
	set = press(button.Data)
	require.False(t, set.Banned)
}

func TestToggleSetFlagIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "s", NSFW: true})
	engine := NewEngine(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		set, err := engine.ToggleSetFlag(ctx, callback.ActionNSFWSet, "s", callback.OutcomeBan)
		require.NoError(t, err)
		require.True(t, set.NSFW)
	}
}

func TestToggleSetFlagRejectsForeignInput(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "s"})
	engine := NewEngine(store)
	ctx := context.Background()

	_, err := engine.ToggleSetFlag(ctx, callback.ActionBanSet, "s", callback.OutcomeRevert)
	require.Error(t, err)
	_, err = engine.ToggleSetFlag(ctx, callback.ActionNext, "s", callback.OutcomeBan)
	require.Error(t, err)
	require.False(t, store.sets["s"].Banned)
}

func TestReviewNextAdvancesQueue(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "first", Complete: true})
	store.addSet(models.StickerSet{Name: "second", Complete: true})
	store.addSet(models.StickerSet{Name: "importing", Complete: false})
	engine := NewEngine(store)
	ctx := context.Background()

	next, err := engine.ReviewNext(ctx, "first")
	require.NoError(t, err)
	require.True(t, store.sets["first"].Reviewed)
	require.NotNil(t, next)
	require.Equal(t, "second", next.Name)

	next, err = engine.ReviewNext(ctx, "second")
	require.NoError(t, err)
	require.Nil(t, next, "half-imported sets stay out of the queue")
}

func TestResolveVoteFlipsFlagAndResolvesTask(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "reported"})
	setName := "reported"
	taskID := uuid.New()
	store.tasks[taskID] = models.Task{ID: taskID, Kind: models.TaskVoteBan, SetName: &setName}
	engine := NewEngine(store)
	ctx := context.Background()

	task, set, err := engine.ResolveVote(ctx, callback.ActionVoteBan, taskID, callback.OutcomeBan)
	require.NoError(t, err)
	require.True(t, set.Banned)
	require.True(t, task.Reviewed)
	require.True(t, task.Accepted)
	require.Equal(t, 1, store.txCalls, "flag flip and verdict commit together")

	task, set, err = engine.ResolveVote(ctx, callback.ActionVoteBan, taskID, callback.OutcomeOK)
	require.NoError(t, err)
	require.False(t, set.Banned)
	require.True(t, task.Reviewed)
	require.False(t, task.Accepted)
}

func TestResolveVoteNSFWTogglesIndependently(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "reported", Banned: true})
	setName := "reported"
	taskID := uuid.New()
	store.tasks[taskID] = models.Task{ID: taskID, Kind: models.TaskVoteNSFW, SetName: &setName}
	engine := NewEngine(store)

	_, set, err := engine.ResolveVote(context.Background(), callback.ActionVoteNSFW, taskID, callback.OutcomeBan)
	require.NoError(t, err)
	require.True(t, set.NSFW)
	require.True(t, set.Banned, "the other flag is untouched")
}

// revertFixture builds a user whose two changes first added x, then
// replaced x with y. The sticker currently carries y.
func revertFixture() (*fakeStore, uuid.UUID) {
	store := newFakeStore()
	x := models.Tag{ID: 1, Name: "x", DefaultLanguage: true}
	y := models.Tag{ID: 2, Name: "y", DefaultLanguage: true}
	store.tags["s"] = map[int64]bool{y.ID: true}
	store.changes = []models.Change{
		{ID: 1, UserID: 7, StickerFileID: "s", Added: []models.Tag{x}},
		{ID: 2, UserID: 7, StickerFileID: "s", Added: []models.Tag{y}, Removed: []models.Tag{x}},
	}
	store.users[7] = models.User{ID: 7}
	taskID := uuid.New()
	userID := int64(7)
	store.tasks[taskID] = models.Task{ID: taskID, Kind: models.TaskUserRevert, UserID: &userID}
	return store, taskID
}

func TestResolveUserRevertRestoresPriorState(t *testing.T) {
	store, taskID := revertFixture()
	engine := NewEngine(store)

	task, user, err := engine.ResolveUserRevert(context.Background(), taskID, callback.OutcomeRevert)
	require.NoError(t, err)

	require.Empty(t, store.stickerTagIDs("s"), "both changes undone leaves the pre-user state")
	require.True(t, user.Reverted)
	require.True(t, user.Banned)
	require.True(t, task.Reviewed)
	require.True(t, task.Accepted)
	for _, c := range store.changes {
		require.True(t, c.Reverted)
	}
}

func TestResolveUserRevertUndoReplaysChanges(t *testing.T) {
	store, taskID := revertFixture()
	engine := NewEngine(store)
	ctx := context.Background()

	_, _, err := engine.ResolveUserRevert(ctx, taskID, callback.OutcomeRevert)
	require.NoError(t, err)

	task, user, err := engine.ResolveUserRevert(ctx, taskID, callback.OutcomeOK)
	require.NoError(t, err)

	require.Equal(t, []int64{2}, store.stickerTagIDs("s"), "replay lands on the last change's result")
	require.False(t, user.Reverted)
	require.False(t, user.Banned)
	require.True(t, task.Reviewed)
	require.False(t, task.Accepted)
	for _, c := range store.changes {
		require.False(t, c.Reverted)
	}
}

func TestResolveUserRevertIsIdempotent(t *testing.T) {
	store, taskID := revertFixture()
	engine := NewEngine(store)
	ctx := context.Background()

	_, _, err := engine.ResolveUserRevert(ctx, taskID, callback.OutcomeRevert)
	require.NoError(t, err)
	tagsAfterFirst := store.stickerTagIDs("s")

	_, user, err := engine.ResolveUserRevert(ctx, taskID, callback.OutcomeRevert)
	require.NoError(t, err)
	require.Equal(t, tagsAfterFirst, store.stickerTagIDs("s"))
	require.True(t, user.Reverted)
}

func TestResolveUserRevertEverythingFine(t *testing.T) {
	store, taskID := revertFixture()
	engine := NewEngine(store)

	task, user, err := engine.ResolveUserRevert(context.Background(), taskID, callback.OutcomeOK)
	require.NoError(t, err)

	require.True(t, task.Reviewed)
	require.False(t, task.Accepted)
	require.False(t, user.Reverted)
	require.Equal(t, []int64{2}, store.stickerTagIDs("s"), "dismissing the task leaves tags alone")
}

func languageTask(store *fakeStore, name string) uuid.UUID {
	taskID := uuid.New()
	store.tasks[taskID] = models.Task{ID: taskID, Kind: models.TaskNewLanguage, Value: &name}
	return taskID
}

func TestResolveLanguageAccept(t *testing.T) {
	store := newFakeStore()
	taskID := languageTask(store, "danish")
	engine := NewEngine(store)

	task, err := engine.ResolveLanguage(context.Background(), taskID, callback.OutcomeOK)
	require.NoError(t, err)
	require.True(t, task.Reviewed)
	require.True(t, task.Accepted)
	require.True(t, store.languages["danish"])

	// Re-pressing accept changes nothing.
	task, err = engine.ResolveLanguage(context.Background(), taskID, callback.OutcomeOK)
	require.NoError(t, err)
	require.True(t, task.Accepted)
	require.True(t, store.languages["danish"])
}

func TestResolveLanguageDeny(t *testing.T) {
	store := newFakeStore()
	taskID := languageTask(store, "danish")
	engine := NewEngine(store)

	task, err := engine.ResolveLanguage(context.Background(), taskID, callback.OutcomeBan)
	require.NoError(t, err)
	require.True(t, task.Reviewed)
	require.False(t, task.Accepted)
	require.False(t, store.languages["danish"])
}

func TestResolveLanguageDeleteAfterAccept(t *testing.T) {
	store := newFakeStore()
	taskID := languageTask(store, "danish")
	engine := NewEngine(store)
	ctx := context.Background()

	_, err := engine.ResolveLanguage(ctx, taskID, callback.OutcomeOK)
	require.NoError(t, err)

	task, err := engine.ResolveLanguage(ctx, taskID, callback.OutcomeBan)
	require.NoError(t, err)
	require.False(t, task.Accepted)
	require.False(t, store.languages["danish"])
}

func setLanguageTask(store *fakeStore, setName, value string) uuid.UUID {
	taskID := uuid.New()
	store.tasks[taskID] = models.Task{ID: taskID, Kind: models.TaskSetLanguage, SetName: &setName, Value: &value}
	return taskID
}

func TestResolveSetLanguageAccept(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "s", Language: models.DefaultLanguageName, DefaultLanguage: true})
	taskID := setLanguageTask(store, "s", "danish")
	engine := NewEngine(store)

	task, set, err := engine.ResolveSetLanguage(context.Background(), taskID, callback.OutcomeOK)
	require.NoError(t, err)
	require.True(t, task.Reviewed)
	require.True(t, task.Accepted)
	require.Equal(t, "danish", set.Language)
	require.False(t, set.DefaultLanguage)
}

func TestResolveSetLanguageRevertToDefault(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "s", Language: models.DefaultLanguageName, DefaultLanguage: true})
	taskID := setLanguageTask(store, "s", "danish")
	engine := NewEngine(store)
	ctx := context.Background()

	_, _, err := engine.ResolveSetLanguage(ctx, taskID, callback.OutcomeOK)
	require.NoError(t, err)

	task, set, err := engine.ResolveSetLanguage(ctx, taskID, callback.OutcomeBan)
	require.NoError(t, err)
	require.False(t, task.Accepted)
	require.Equal(t, models.DefaultLanguageName, set.Language)
	require.True(t, set.DefaultLanguage)
}

func TestResolveSetLanguageRevertGuardedByCurrentValue(t *testing.T) {
	store := newFakeStore()
	store.addSet(models.StickerSet{Name: "s", Language: models.DefaultLanguageName, DefaultLanguage: true})
	taskID := setLanguageTask(store, "s", "danish")
	engine := NewEngine(store)
	ctx := context.Background()

	_, _, err := engine.ResolveSetLanguage(ctx, taskID, callback.OutcomeOK)
	require.NoError(t, err)

	// Another review moved the set on; the stale revert must not fire.
	require.NoError(t, store.SetStickerSetLanguage(ctx, "s", "norwegian", false))

	_, set, err := engine.ResolveSetLanguage(ctx, taskID, callback.OutcomeBan)
	require.NoError(t, err)
	require.Equal(t, "norwegian", set.Language)
}
