package store

import (
	"context"
	"database/sql"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/google/uuid"
)

// TaskFilter narrows List results. Zero values mean "no filter".
type TaskFilter struct {
	// ParentID, when set, selects the direct subtasks of that task.
	ParentID *uuid.UUID
	// TopLevelOnly selects only tasks without a parent.
	TopLevelOnly bool
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task owned by userID.
	// Returns ErrTaskNotFound if no such task exists for that user.
	GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error)

	// List returns a page of the user's tasks plus the total count for the
	// filter, ordered by creation time.
	List(ctx context.Context, userID uuid.UUID, filter TaskFilter, offset, limit int) ([]*domain.Task, int, error)

	// CountIncompleteSubtasks returns how many direct subtasks of the task
	// are not completed.
	CountIncompleteSubtasks(ctx context.Context, taskID uuid.UUID) (int, error)

	// Update modifies an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task and, via the schema's cascade, its subtasks.
	// Returns ErrTaskNotFound if the task does not exist for that user.
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// WithTx returns a TaskStore that runs its operations on the provided
	// transaction.
	WithTx(tx *sql.Tx) TaskStore
}
