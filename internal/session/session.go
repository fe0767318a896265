// Package session drives per-chat tagging sessions. All session state
// lives on the chat row; the manager serializes mutations per chat so
// two updates never race on the same session.
package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"stickerdex/core/logger"
	"stickerdex/internal/locales"
	"stickerdex/internal/models"
	"stickerdex/internal/storage"
	"stickerdex/internal/tagging"
)

var (
	// ErrSetNotReady reports a tagging attempt on a set still being
	// imported. The user has already been told; session state is
	// unchanged.
	ErrSetNotReady = errors.New("sticker set not ready")
	// ErrNoEligibleSticker reports an exhausted random queue. The user
	// has already been told and the session is cancelled.
	ErrNoEligibleSticker = errors.New("no eligible sticker")
)

// lockStripes bounds concurrent session work; chats hash onto stripes.
const lockStripes = 64

// Transport delivers session prompts. Implementations render keyboards
// and swallow delivery failures; the session only decides what to send.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	// SendStickerPrompt shows a sticker with its tag state and returns
	// the id of the message carrying the tagging keyboard.
	SendStickerPrompt(ctx context.Context, chatID int64, sticker models.Sticker, text string) (int, error)
}

// Tagger applies tag text to a sticker.
type Tagger interface {
	ApplyTags(ctx context.Context, sticker models.Sticker, text string, user models.User, opts tagging.ApplyOptions) (*models.Change, error)
}

// Importer fetches sticker sets in the background.
type Importer interface {
	RequestImport(ctx context.Context, chatID int64, setName string)
}

// Manager is the session state machine. Every operation locks the
// chat's stripe, so handlers for the same chat run one at a time.
type Manager struct {
	store     storage.Datastore
	tagger    Tagger
	transport Transport
	importer  Importer
	msgs      *locales.Messages

	locks [lockStripes]sync.Mutex
}

func NewManager(store storage.Datastore, tagger Tagger, transport Transport, importer Importer, msgs *locales.Messages) *Manager {
	return &Manager{
		store:     store,
		tagger:    tagger,
		transport: transport,
		importer:  importer,
		msgs:      msgs,
	}
}

func (m *Manager) lockChat(chatID int64) func() {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(chatID) >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	lock := &m.locks[h.Sum64()%lockStripes]
	lock.Lock()
	return lock.Unlock
}

// EnterStickerSetMode starts tagging a whole set. Sets still being
// imported abort with ErrSetNotReady after telling the user and
// nudging the importer; the session is left untouched.
func (m *Manager) EnterStickerSetMode(ctx context.Context, chatID int64, user models.User, setName string) error {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	set, created, err := m.store.GetOrCreateStickerSet(ctx, setName, "")
	if err != nil {
		return fmt.Errorf("resolve set: %w", err)
	}

	if created || !set.Complete {
		m.sendText(ctx, chatID, m.msgs.SetNotReady(set.Name))
		if m.importer != nil {
			m.importer.RequestImport(ctx, chatID, set.Name)
		}
		return fmt.Errorf("set %q: %w", set.Name, ErrSetNotReady)
	}

	stickers, err := m.store.StickersInSet(ctx, set.Name)
	if err != nil {
		return fmt.Errorf("load set stickers: %w", err)
	}
	if len(stickers) == 0 {
		m.sendText(ctx, chatID, m.msgs.SetNotReady(set.Name))
		if m.importer != nil {
			m.importer.RequestImport(ctx, chatID, set.Name)
		}
		return fmt.Errorf("set %q has no stickers: %w", set.Name, ErrSetNotReady)
	}

	chat.TagMode = models.ModeStickerSet
	first := stickers[0].FileID
	chat.CurrentStickerFileID = &first
	if err := m.store.SaveChatSession(ctx, &chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.logMode(chat.ID, chat.TagMode)

	m.sendText(ctx, chatID, m.msgs.TaggingInstructions())
	return m.prompt(ctx, &chat, user, stickers[0], false)
}

// EnterRandomMode starts serving random untagged stickers.
func (m *Manager) EnterRandomMode(ctx context.Context, chatID int64, user models.User) error {
	unlock := m.lockChat(chatID)

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		unlock()
		return fmt.Errorf("load chat: %w", err)
	}
	chat.TagMode = models.ModeRandom
	chat.CurrentStickerFileID = nil
	if err := m.store.SaveChatSession(ctx, &chat); err != nil {
		unlock()
		return fmt.Errorf("save session: %w", err)
	}
	m.logMode(chat.ID, chat.TagMode)
	m.sendText(ctx, chatID, m.msgs.TaggingInstructions())
	unlock()

	return m.Advance(ctx, chatID, user)
}

// Advance moves the session to its next sticker. In set mode the walk
// is positional; falling off the end marks the set completely tagged
// and ends the session. In random mode a fresh eligibility query picks
// the candidate; an empty result ends the session with
// ErrNoEligibleSticker. Other modes have nothing to advance.
func (m *Manager) Advance(ctx context.Context, chatID int64, user models.User) error {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}

	switch chat.TagMode {
	case models.ModeStickerSet:
		return m.advanceInSet(ctx, &chat, user)
	case models.ModeRandom:
		return m.advanceRandom(ctx, &chat, user)
	default:
		return nil
	}
}

func (m *Manager) advanceInSet(ctx context.Context, chat *models.Chat, user models.User) error {
	current := chat.CurrentSticker()
	if current == "" {
		return m.cancelLocked(ctx, chat, user, true)
	}

	sticker, err := m.store.GetSticker(ctx, current)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Session.Warn("current sticker vanished",
			slog.String("event", "session.advance"),
			slog.Int64("chat_id", chat.ID),
			slog.String("sticker", current),
		)
		return m.cancelLocked(ctx, chat, user, true)
	}
	if err != nil {
		return fmt.Errorf("load current sticker: %w", err)
	}

	stickers, err := m.store.StickersInSet(ctx, sticker.SetName)
	if err != nil {
		return fmt.Errorf("load set stickers: %w", err)
	}

	// Position is a lookup by identity. A current sticker missing from
	// its set's sequence counts as end-of-set.
	next := -1
	for i, s := range stickers {
		if s.FileID == current {
			if i+1 < len(stickers) {
				next = i + 1
			}
			break
		}
	}

	if next < 0 {
		if err := m.store.MarkStickerSetCompletelyTagged(ctx, sticker.SetName); err != nil {
			return fmt.Errorf("mark set tagged: %w", err)
		}
		logger.Session.Info("set fully tagged",
			slog.String("event", "session.set_done"),
			slog.Int64("chat_id", chat.ID),
			slog.String("set", sticker.SetName),
		)
		m.sendText(ctx, chat.ID, m.msgs.SetFullyTagged())
		return m.cancelLocked(ctx, chat, user, true)
	}

	chat.CurrentStickerFileID = &stickers[next].FileID
	if err := m.store.SaveChatSession(ctx, chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return m.prompt(ctx, chat, user, stickers[next], false)
}

func (m *Manager) advanceRandom(ctx context.Context, chat *models.Chat, user models.User) error {
	sticker, err := m.store.RandomEligibleSticker(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		m.sendText(ctx, chat.ID, m.msgs.AllTagged())
		if err := m.cancelLocked(ctx, chat, user, true); err != nil {
			return err
		}
		return ErrNoEligibleSticker
	}
	if err != nil {
		return fmt.Errorf("pick random sticker: %w", err)
	}

	chat.CurrentStickerFileID = &sticker.FileID
	if err := m.store.SaveChatSession(ctx, chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return m.prompt(ctx, chat, user, sticker, true)
}

// Cancel ends the session. Ending a set or random session also reports
// the user's running tagged count. Cancelling an idle chat is a no-op.
func (m *Manager) Cancel(ctx context.Context, chatID int64, user models.User) error {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	reportCount := chat.TagMode == models.ModeStickerSet || chat.TagMode == models.ModeRandom
	return m.cancelLocked(ctx, &chat, user, reportCount)
}

func (m *Manager) cancelLocked(ctx context.Context, chat *models.Chat, user models.User, reportCount bool) error {
	if reportCount {
		count, err := m.store.UserTaggedStickerCount(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("tagged count: %w", err)
		}
		m.sendText(ctx, chat.ID, m.msgs.TaggedCount(count))
	}

	chat.TagMode = models.ModeNone
	chat.CurrentStickerFileID = nil
	chat.LastStickerMessageID = 0
	if err := m.store.SaveChatSession(ctx, chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.logMode(chat.ID, chat.TagMode)
	return nil
}

// HandleText feeds session text to the tag change engine. The returned
// advance flag tells the caller to invoke Advance; the transport round
// trip between the two stays outside the state machine.
func (m *Manager) HandleText(ctx context.Context, chatID int64, user models.User, messageID int, text string) (bool, error) {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("load chat: %w", err)
	}
	if chat.TagMode == models.ModeNone {
		return false, nil
	}
	current := chat.CurrentSticker()
	if current == "" {
		logger.Session.Warn("session text without current sticker",
			slog.String("event", "session.text"),
			slog.Int64("chat_id", chatID),
			slog.String("mode", string(chat.TagMode)),
		)
		return false, nil
	}

	sticker, err := m.store.GetSticker(ctx, current)
	if errors.Is(err, storage.ErrNotFound) {
		return false, m.cancelLocked(ctx, &chat, user, false)
	}
	if err != nil {
		return false, fmt.Errorf("load current sticker: %w", err)
	}

	single := chat.TagMode == models.ModeSingleSticker
	change, err := m.tagger.ApplyTags(ctx, sticker, text, user, tagging.ApplyOptions{
		Replace:              single,
		SingleSticker:        single,
		ChatID:               chatID,
		MessageID:            messageID,
		LastStickerMessageID: chat.LastStickerMessageID,
	})
	if err != nil {
		return false, fmt.Errorf("apply session text: %w", err)
	}
	if change == nil {
		return false, nil
	}

	if single {
		return false, m.cancelLocked(ctx, &chat, user, false)
	}
	return true, nil
}

// FixSticker points the session at one sticker for correction. Inside
// a set or random walk the walk continues afterwards; otherwise the
// session becomes a one-off fix.
func (m *Manager) FixSticker(ctx context.Context, chatID int64, user models.User, fileID string) error {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	sticker, err := m.store.GetSticker(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load sticker: %w", err)
	}

	chat.CurrentStickerFileID = &sticker.FileID
	if chat.TagMode != models.ModeStickerSet && chat.TagMode != models.ModeRandom {
		chat.TagMode = models.ModeSingleSticker
	}
	if err := m.store.SaveChatSession(ctx, &chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.logMode(chat.ID, chat.TagMode)
	return m.prompt(ctx, &chat, user, sticker, false)
}

// SetContext points the chat at a sticker without opening a session.
// An incoming sticker becomes the target of a later /tag or /tag_set;
// inside a set or random walk it moves the walk to that sticker.
func (m *Manager) SetContext(ctx context.Context, chatID int64, fileID string) error {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	chat.CurrentStickerFileID = &fileID
	if err := m.store.SaveChatSession(ctx, &chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ContinueSet resumes a set walk at the given sticker, replacing any
// session in flight.
func (m *Manager) ContinueSet(ctx context.Context, chatID int64, user models.User, fileID string) error {
	defer m.lockChat(chatID)()

	chat, err := m.store.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	sticker, err := m.store.GetSticker(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load sticker: %w", err)
	}

	chat.TagMode = models.ModeStickerSet
	chat.CurrentStickerFileID = &sticker.FileID
	chat.LastStickerMessageID = 0
	if err := m.store.SaveChatSession(ctx, &chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.logMode(chat.ID, chat.TagMode)
	return m.prompt(ctx, &chat, user, sticker, false)
}

// prompt shows the sticker and its tag state. Transport trouble is
// logged and swallowed; only the session bookkeeping can fail here.
func (m *Manager) prompt(ctx context.Context, chat *models.Chat, user models.User, sticker models.Sticker, sendSetInfo bool) error {
	set, err := m.store.GetStickerSet(ctx, sticker.SetName)
	if err != nil {
		return fmt.Errorf("load set: %w", err)
	}
	scopeDefault := user.DefaultLanguage && set.DefaultLanguage
	tags, err := m.store.StickerTagsForLanguage(ctx, sticker.FileID, scopeDefault)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}

	text := PromptText(m.msgs, set, tags, scopeDefault, sendSetInfo)
	messageID, err := m.transport.SendStickerPrompt(ctx, chat.ID, sticker, text)
	if err != nil {
		logger.Session.Warn("prompt delivery failed",
			slog.String("event", "session.prompt"),
			slog.Int64("chat_id", chat.ID),
			slog.String("sticker", sticker.FileID),
			slog.String("err", err.Error()),
		)
		return nil
	}

	chat.LastStickerMessageID = messageID
	if err := m.store.SaveChatSession(ctx, chat); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) sendText(ctx context.Context, chatID int64, text string) {
	if err := m.transport.SendText(ctx, chatID, text); err != nil {
		logger.Session.Warn("message delivery failed",
			slog.String("event", "session.send"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

func (m *Manager) logMode(chatID int64, mode models.TagMode) {
	logger.Session.Info("tag mode changed",
		slog.String("event", "session.mode"),
		slog.Int64("chat_id", chatID),
		slog.String("mode", string(mode)),
	)
}
