package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"stickerdex/core/logger"
	"stickerdex/internal/locales"
	"stickerdex/internal/models"
	"stickerdex/internal/storage"
	"stickerdex/internal/tagging"
)

// importQueueSize bounds pending imports. A full queue drops requests;
// the next reference to the set queues it again.
const importQueueSize = 64

type importJob struct {
	ctx     context.Context
	chatID  int64
	setName string
}

// Importer pulls sticker sets from Telegram in the background. Requests
// deduplicate on set name, so hammering /tag_set during an import does
// not stack fetches.
type Importer struct {
	store     storage.Datastore
	tagger    *tagging.Engine
	transport *Transport
	msgs      *locales.Messages

	jobs chan importJob
	once sync.Once
	wg   sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewImporter(store storage.Datastore, tagger *tagging.Engine, transport *Transport, msgs *locales.Messages) *Importer {
	imp := &Importer{
		store:     store,
		tagger:    tagger,
		transport: transport,
		msgs:      msgs,
		jobs:      make(chan importJob, importQueueSize),
		inflight:  make(map[string]struct{}),
	}
	imp.wg.Add(1)
	go imp.worker()
	return imp
}

// RequestImport queues a fetch of the named set. The chat id names who
// to tell when the set becomes taggable; zero means nobody asked.
func (imp *Importer) RequestImport(ctx context.Context, chatID int64, setName string) {
	imp.mu.Lock()
	if _, busy := imp.inflight[setName]; busy {
		imp.mu.Unlock()
		return
	}
	imp.inflight[setName] = struct{}{}
	imp.mu.Unlock()

	select {
	case imp.jobs <- importJob{ctx: ctx, chatID: chatID, setName: setName}:
	default:
		imp.release(setName)
		logger.Importer.Warn("import queue full",
			slog.String("event", "import.queue"),
			slog.String("set", setName),
		)
	}
}

// Close stops the worker after the queued imports finish.
func (imp *Importer) Close() {
	imp.once.Do(func() {
		close(imp.jobs)
		imp.wg.Wait()
	})
}

func (imp *Importer) release(setName string) {
	imp.mu.Lock()
	delete(imp.inflight, setName)
	imp.mu.Unlock()
}

func (imp *Importer) worker() {
	defer imp.wg.Done()
	for job := range imp.jobs {
		imp.run(job)
		imp.release(job.setName)
	}
}

func (imp *Importer) run(job importJob) {
	ctx := job.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	count, err := imp.importSet(ctx, job.setName)
	if err != nil {
		logger.Importer.Error("import failed",
			slog.String("event", "import.run"),
			slog.String("set", job.setName),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		sentry.CaptureException(fmt.Errorf("import %q: %w", job.setName, err))
		if job.chatID != 0 {
			imp.transport.NotifyText(ctx, job.chatID, imp.msgs.ActionFailed())
		}
		return
	}

	logger.Importer.Info("set imported",
		slog.String("event", "import.run"),
		slog.String("set", job.setName),
		slog.Int("stickers", count),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	set, err := imp.store.GetStickerSet(ctx, job.setName)
	if err != nil {
		logger.Importer.Warn("imported set reload failed",
			slog.String("event", "import.run"),
			slog.String("set", job.setName),
			slog.String("err", err.Error()),
		)
		return
	}

	if job.chatID != 0 {
		imp.transport.NotifyText(ctx, job.chatID, imp.msgs.SetAdded(set.Title))
	}
	if !set.Reviewed {
		imp.announce(ctx, set)
	}
}

// importSet pulls the set from Telegram and lands every sticker with
// its position and protected original emojis. The completion flag only
// flips after the last sticker, so a crash mid-import leaves the set
// fetchable again.
func (imp *Importer) importSet(ctx context.Context, setName string) (int, error) {
	if _, _, err := imp.store.GetOrCreateStickerSet(ctx, setName, ""); err != nil {
		return 0, fmt.Errorf("resolve set: %w", err)
	}

	remote, err := imp.transport.StickerSet(setName)
	if err != nil {
		return 0, fmt.Errorf("fetch set: %w", err)
	}

	if remote.Title != "" {
		if err := imp.store.UpdateStickerSetTitle(ctx, setName, remote.Title); err != nil {
			return 0, fmt.Errorf("store title: %w", err)
		}
	}

	for position, remoteSticker := range remote.Stickers {
		sticker := models.Sticker{
			FileID:   remoteSticker.FileID,
			SetName:  setName,
			Position: position,
		}
		if err := imp.store.UpsertSticker(ctx, sticker); err != nil {
			return 0, fmt.Errorf("store sticker %q: %w", sticker.FileID, err)
		}
		if remoteSticker.Emoji != "" {
			if err := imp.tagger.AddOriginalEmojis(ctx, sticker, []string{remoteSticker.Emoji}); err != nil {
				return 0, fmt.Errorf("emoji tags for %q: %w", sticker.FileID, err)
			}
		}
	}

	if err := imp.store.MarkStickerSetComplete(ctx, setName); err != nil {
		return 0, fmt.Errorf("mark complete: %w", err)
	}
	return len(remote.Stickers), nil
}

// announce fans the set out to every newsfeed chat for review.
func (imp *Importer) announce(ctx context.Context, set models.StickerSet) {
	stickers, err := imp.store.StickersInSet(ctx, set.Name)
	if err != nil || len(stickers) == 0 {
		return
	}
	chats, err := imp.store.NewsfeedChats(ctx)
	if err != nil {
		logger.Importer.Warn("newsfeed chats lookup failed",
			slog.String("event", "import.announce"),
			slog.String("err", err.Error()),
		)
		return
	}
	for _, chat := range chats {
		imp.transport.AnnounceSet(ctx, chat.ID, set, stickers[0])
	}
}
