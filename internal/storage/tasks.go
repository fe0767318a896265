package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stickerdex/internal/models"
)

const taskColumns = `id, kind, sticker_set_name, user_id, value, accepted, reviewed, created_at`

// CreateTask stores a review work item. The caller assigns the id.
func (q queries) CreateTask(ctx context.Context, task *models.Task) error {
	err := sqlx.GetContext(ctx, q.ext, task, `
		INSERT INTO tasks (id, kind, sticker_set_name, user_id, value)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+taskColumns,
		task.ID, task.Kind, task.SetName, task.UserID, task.Value)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (q queries) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var task models.Task
	err := sqlx.GetContext(ctx, q.ext, &task,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if noRows(err) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// SetTaskReviewed resolves a task with the reviewer's verdict.
func (q queries) SetTaskReviewed(ctx context.Context, id uuid.UUID, accepted bool) error {
	err := q.execOne(ctx,
		`UPDATE tasks SET reviewed = true, accepted = $2 WHERE id = $1`, id, accepted)
	if err != nil {
		return fmt.Errorf("set task reviewed: %w", err)
	}
	return nil
}

// NextUnreviewedTask returns the oldest open task.
func (q queries) NextUnreviewedTask(ctx context.Context) (models.Task, error) {
	var task models.Task
	err := sqlx.GetContext(ctx, q.ext, &task, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE reviewed = false
		ORDER BY created_at, id
		LIMIT 1`)
	if noRows(err) {
		return models.Task{}, fmt.Errorf("task queue: %w", ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("next unreviewed task: %w", err)
	}
	return task, nil
}
