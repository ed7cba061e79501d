package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
	"github.com/avolkov/taskhub-api/internal/store"
)

// TaskStore implements the store.TaskStore interface using PostgreSQL.
// Every operation is bounded by the configured per-operation timeout.
type TaskStore struct {
	db      store.DBTX
	timeout time.Duration
}

// NewTaskStore creates a new PostgreSQL implementation of the TaskStore
// interface.
func NewTaskStore(db store.DBTX, timeout time.Duration) *TaskStore {
	return &TaskStore{db: db, timeout: timeout}
}

var _ store.TaskStore = (*TaskStore)(nil)

const taskColumns = `id, user_id, parent_id, title, description, completed, completed_at, created_at, updated_at`

// Create implements store.TaskStore.Create
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.ParentID,
		task.Title,
		task.Description,
		task.Completed,
		task.CompletedAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to create task", "error", err, "task_id", task.ID)
		return fmt.Errorf("failed to create task: %w", mapError(err))
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *TaskStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", mapError(err))
	}

	return task, nil
}

// List implements store.TaskStore.List
func (s *TaskStore) List(ctx context.Context, userID uuid.UUID, filter store.TaskFilter, offset, limit int) ([]*domain.Task, int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	where := `WHERE user_id = $1`
	args := []any{userID}

	switch {
	case filter.ParentID != nil:
		where += ` AND parent_id = $2`
		args = append(args, *filter.ParentID)
	case filter.TopLevelOnly:
		where += ` AND parent_id IS NULL`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", mapError(err))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM tasks %s ORDER BY created_at DESC OFFSET $%d LIMIT $%d`,
		taskColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, offset, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", mapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.FromContext(ctx).Error("failed to close rows", "error", err)
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate task rows: %w", mapError(err))
	}

	return tasks, total, nil
}

// CountIncompleteSubtasks implements store.TaskStore.CountIncompleteSubtasks
func (s *TaskStore) CountIncompleteSubtasks(ctx context.Context, taskID uuid.UUID) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	query := `SELECT COUNT(*) FROM tasks WHERE parent_id = $1 AND completed = FALSE`
	if err := s.db.QueryRowContext(ctx, query, taskID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count incomplete subtasks: %w", mapError(err))
	}
	return count, nil
}

// Update implements store.TaskStore.Update
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE tasks
		SET title = $1, description = $2, completed = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Completed,
		task.CompletedAt,
		task.ID,
		task.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// Delete implements store.TaskStore.Delete
func (s *TaskStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// WithTx implements store.TaskStore.WithTx
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &TaskStore{db: tx, timeout: s.timeout}
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.ParentID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
