// Package moderation turns reviewer button presses into flag flips,
// task verdicts and change reverts. Outcomes encode target states, not
// toggles, so every resolution is idempotent: pressing a button for
// the state an entity is already in re-renders the same keyboard.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"stickerdex/core/logger"
	"stickerdex/internal/callback"
	"stickerdex/internal/models"
	"stickerdex/internal/storage"
)

// Engine resolves moderation decisions against the store. Flag flips
// and their task verdicts commit as one unit; keyboard re-rendering is
// the caller's job, fed by the returned entities.
type Engine struct {
	store storage.Datastore
}

func NewEngine(store storage.Datastore) *Engine {
	return &Engine{store: store}
}

// flagValue maps a pressed outcome to the flag value it requests.
func flagValue(outcome callback.Outcome) (bool, error) {
	switch outcome {
	case callback.OutcomeBan:
		return true, nil
	case callback.OutcomeOK:
		return false, nil
	default:
		return false, fmt.Errorf("outcome %s does not name a flag state", outcome)
	}
}

// ToggleSetFlag applies a newsfeed flag button and returns the updated
// set for the keyboard re-render.
func (e *Engine) ToggleSetFlag(ctx context.Context, action callback.Action, setName string, outcome callback.Outcome) (models.StickerSet, error) {
	value, err := flagValue(outcome)
	if err != nil {
		return models.StickerSet{}, err
	}

	switch action {
	case callback.ActionBanSet:
		err = e.store.SetStickerSetBanned(ctx, setName, value)
	case callback.ActionNSFWSet:
		err = e.store.SetStickerSetNSFW(ctx, setName, value)
	case callback.ActionFurSet:
		err = e.store.SetStickerSetFurry(ctx, setName, value)
	default:
		return models.StickerSet{}, fmt.Errorf("action %s does not toggle a set flag", action)
	}
	if err != nil {
		return models.StickerSet{}, fmt.Errorf("toggle %s on %q: %w", action, setName, err)
	}

	logger.Moderation.Info("set flag changed",
		slog.String("event", "moderation.flag"),
		slog.String("set", setName),
		slog.String("flag", action.String()),
		slog.Bool("value", value),
	)
	return e.store.GetStickerSet(ctx, setName)
}

// ReviewNext closes the review of one set and returns the next set
// awaiting review, or nil when the queue is empty.
func (e *Engine) ReviewNext(ctx context.Context, setName string) (*models.StickerSet, error) {
	if err := e.store.SetStickerSetReviewed(ctx, setName, true); err != nil {
		return nil, fmt.Errorf("mark %q reviewed: %w", setName, err)
	}
	logger.Moderation.Info("set reviewed",
		slog.String("event", "moderation.review"),
		slog.String("set", setName),
	)

	next, err := e.store.NextUnreviewedSet(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next unreviewed set: %w", err)
	}
	return &next, nil
}

// ResolveVote applies one toggle of a vote-ban or vote-nsfw task. The
// flag flip and the task verdict commit together; the verdict tracks
// whether the report ended in a restriction.
func (e *Engine) ResolveVote(ctx context.Context, action callback.Action, taskID uuid.UUID, outcome callback.Outcome) (models.Task, models.StickerSet, error) {
	value, err := flagValue(outcome)
	if err != nil {
		return models.Task{}, models.StickerSet{}, err
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, models.StickerSet{}, err
	}
	if task.SetName == nil {
		return models.Task{}, models.StickerSet{}, fmt.Errorf("task %s names no sticker set", taskID)
	}
	setName := *task.SetName

	err = e.store.InTx(ctx, func(q storage.Queries) error {
		switch action {
		case callback.ActionVoteBan:
			if err := q.SetStickerSetBanned(ctx, setName, value); err != nil {
				return err
			}
		case callback.ActionVoteNSFW:
			if err := q.SetStickerSetNSFW(ctx, setName, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("action %s is not a vote toggle", action)
		}
		return q.SetTaskReviewed(ctx, taskID, value)
	})
	if err != nil {
		return models.Task{}, models.StickerSet{}, fmt.Errorf("resolve vote on %q: %w", setName, err)
	}

	logger.Moderation.Info("vote resolved",
		slog.String("event", "moderation.vote"),
		slog.String("task", taskID.String()),
		slog.String("set", setName),
		slog.String("flag", action.String()),
		slog.Bool("value", value),
	)
	return e.reloadTaskSet(ctx, taskID, setName)
}

// ResolveUserRevert applies a check-user verdict. "revert" inverts
// every live change the user made and bans them; "ok" on a reverted
// user undoes exactly that. Both paths commit atomically with the
// task verdict.
func (e *Engine) ResolveUserRevert(ctx context.Context, taskID uuid.UUID, outcome callback.Outcome) (models.Task, models.User, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, models.User{}, err
	}
	if task.UserID == nil {
		return models.Task{}, models.User{}, fmt.Errorf("task %s names no user", taskID)
	}
	user, err := e.store.GetUser(ctx, *task.UserID)
	if err != nil {
		return models.Task{}, models.User{}, err
	}

	switch outcome {
	case callback.OutcomeRevert:
		if user.Reverted {
			break
		}
		err = e.store.InTx(ctx, func(q storage.Queries) error {
			if err := revertUserChanges(ctx, q, user.ID); err != nil {
				return err
			}
			if err := q.SetUserBanned(ctx, user.ID, true); err != nil {
				return err
			}
			return q.SetTaskReviewed(ctx, taskID, true)
		})
	case callback.OutcomeOK:
		switch {
		case !task.Reviewed:
			err = e.store.SetTaskReviewed(ctx, taskID, false)
		case user.Reverted:
			err = e.store.InTx(ctx, func(q storage.Queries) error {
				if err := undoUserRevert(ctx, q, user.ID); err != nil {
					return err
				}
				if err := q.SetUserBanned(ctx, user.ID, false); err != nil {
					return err
				}
				return q.SetTaskReviewed(ctx, taskID, false)
			})
		}
	default:
		return models.Task{}, models.User{}, fmt.Errorf("outcome %s does not resolve a user review", outcome)
	}
	if err != nil {
		return models.Task{}, models.User{}, fmt.Errorf("resolve user review: %w", err)
	}

	logger.Moderation.Info("user review resolved",
		slog.String("event", "moderation.user_revert"),
		slog.String("task", taskID.String()),
		slog.Int64("user_id", user.ID),
		slog.String("outcome", outcome.String()),
	)

	if task, err = e.store.GetTask(ctx, taskID); err != nil {
		return models.Task{}, models.User{}, err
	}
	if user, err = e.store.GetUser(ctx, user.ID); err != nil {
		return models.Task{}, models.User{}, err
	}
	return task, user, nil
}

// ResolveLanguage applies a verdict on a proposed tagging language.
// Accepting registers the language; denying an accepted one deletes it
// again.
func (e *Engine) ResolveLanguage(ctx context.Context, taskID uuid.UUID, outcome callback.Outcome) (models.Task, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if task.Value == nil {
		return models.Task{}, fmt.Errorf("task %s names no language", taskID)
	}
	name := *task.Value

	switch outcome {
	case callback.OutcomeOK:
		if task.Reviewed && task.Accepted {
			break
		}
		err = e.store.InTx(ctx, func(q storage.Queries) error {
			if err := q.CreateLanguage(ctx, name); err != nil && !errors.Is(err, storage.ErrConflict) {
				return err
			}
			return q.SetTaskReviewed(ctx, taskID, true)
		})
	case callback.OutcomeBan:
		switch {
		case task.Reviewed && task.Accepted:
			err = e.store.InTx(ctx, func(q storage.Queries) error {
				if err := q.DeleteLanguage(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				return q.SetTaskReviewed(ctx, taskID, false)
			})
		case !task.Reviewed:
			err = e.store.SetTaskReviewed(ctx, taskID, false)
		}
	default:
		return models.Task{}, fmt.Errorf("outcome %s does not resolve a language review", outcome)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("resolve language %q: %w", name, err)
	}

	logger.Moderation.Info("language review resolved",
		slog.String("event", "moderation.language"),
		slog.String("task", taskID.String()),
		slog.String("language", name),
		slog.String("outcome", outcome.String()),
	)
	return e.store.GetTask(ctx, taskID)
}

// ResolveSetLanguage applies a verdict on a set's proposed language.
// The revert path runs only while the set still carries the proposed
// value; a language moved on by a later task stays put.
func (e *Engine) ResolveSetLanguage(ctx context.Context, taskID uuid.UUID, outcome callback.Outcome) (models.Task, models.StickerSet, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, models.StickerSet{}, err
	}
	if task.SetName == nil || task.Value == nil {
		return models.Task{}, models.StickerSet{}, fmt.Errorf("task %s names no set or language", taskID)
	}
	setName, language := *task.SetName, *task.Value
	set, err := e.store.GetStickerSet(ctx, setName)
	if err != nil {
		return models.Task{}, models.StickerSet{}, err
	}

	switch outcome {
	case callback.OutcomeOK:
		err = e.store.InTx(ctx, func(q storage.Queries) error {
			if err := q.SetStickerSetLanguage(ctx, setName, language, language == models.DefaultLanguageName); err != nil {
				return err
			}
			return q.SetTaskReviewed(ctx, taskID, true)
		})
	case callback.OutcomeBan:
		switch {
		case task.Reviewed && set.Language == language:
			err = e.store.InTx(ctx, func(q storage.Queries) error {
				if err := q.SetStickerSetLanguage(ctx, setName, models.DefaultLanguageName, true); err != nil {
					return err
				}
				return q.SetTaskReviewed(ctx, taskID, false)
			})
		case !task.Reviewed:
			err = e.store.SetTaskReviewed(ctx, taskID, false)
		}
	default:
		return models.Task{}, models.StickerSet{}, fmt.Errorf("outcome %s does not resolve a set language review", outcome)
	}
	if err != nil {
		return models.Task{}, models.StickerSet{}, fmt.Errorf("resolve set language for %q: %w", setName, err)
	}

	logger.Moderation.Info("set language review resolved",
		slog.String("event", "moderation.set_language"),
		slog.String("task", taskID.String()),
		slog.String("set", setName),
		slog.String("language", language),
		slog.String("outcome", outcome.String()),
	)
	return e.reloadTaskSet(ctx, taskID, setName)
}

func (e *Engine) reloadTaskSet(ctx context.Context, taskID uuid.UUID, setName string) (models.Task, models.StickerSet, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, models.StickerSet{}, err
	}
	set, err := e.store.GetStickerSet(ctx, setName)
	if err != nil {
		return models.Task{}, models.StickerSet{}, err
	}
	return task, set, nil
}

// revertUserChanges walks the user's live changes newest first and
// inverts each one: added tags come off, removed tags go back on.
func revertUserChanges(ctx context.Context, q storage.Queries, userID int64) error {
	changes, err := q.UnrevertedChangesByUser(ctx, userID)
	if err != nil {
		return err
	}
	for i := range changes {
		change := &changes[i]
		if ids := tagIDs(change.Added); len(ids) > 0 {
			if err := q.RemoveStickerTags(ctx, change.StickerFileID, ids); err != nil {
				return err
			}
		}
		if ids := tagIDs(change.Removed); len(ids) > 0 {
			if err := q.AddStickerTags(ctx, change.StickerFileID, ids); err != nil {
				return err
			}
		}
		if err := q.SetChangeReverted(ctx, change.ID, true); err != nil {
			return err
		}
	}
	return q.SetUserReverted(ctx, userID, true)
}

// undoUserRevert re-applies the user's reverted changes oldest first,
// restoring the state their newest change had produced.
func undoUserRevert(ctx context.Context, q storage.Queries, userID int64) error {
	changes, err := q.RevertedChangesByUser(ctx, userID)
	if err != nil {
		return err
	}
	for i := range changes {
		change := &changes[i]
		if ids := tagIDs(change.Added); len(ids) > 0 {
			if err := q.AddStickerTags(ctx, change.StickerFileID, ids); err != nil {
				return err
			}
		}
		if ids := tagIDs(change.Removed); len(ids) > 0 {
			if err := q.RemoveStickerTags(ctx, change.StickerFileID, ids); err != nil {
				return err
			}
		}
		if err := q.SetChangeReverted(ctx, change.ID, false); err != nil {
			return err
		}
	}
	return q.SetUserReverted(ctx, userID, false)
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
