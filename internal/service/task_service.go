package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/store"
)

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks  []*domain.Task
	Total  int
	Offset int
	Limit  int
}

// TaskUpdate carries the mutable fields of a task. Nil fields are left
// unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
}

// TaskService implements task management. Every operation is scoped to the
// owning user; a task id belonging to another user behaves exactly like a
// missing one.
type TaskService struct {
	tasks    store.TaskStore
	timeFunc func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks store.TaskStore) *TaskService {
	return &TaskService{
		tasks:    tasks,
		timeFunc: time.Now,
	}
}

// Create adds a new task for the user. When parentID is set the parent
// must exist, belong to the same user, and be a top-level task; subtasks
// cannot be nested further.
func (s *TaskService) Create(ctx context.Context, userID uuid.UUID, title string, description *string, parentID *uuid.UUID) (*domain.Task, error) {
	if parentID != nil {
		parent, err := s.tasks.GetByID(ctx, userID, *parentID)
		if err != nil {
			if store.IsNotFoundError(err) {
				return nil, ErrInvalidParent
			}
			return nil, fmt.Errorf("failed to look up parent task: %w", err)
		}
		if parent.ParentID != nil {
			return nil, ErrInvalidParent
		}
	}

	task, err := domain.NewTask(userID, title, description, parentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// Get returns the user's task with the given id.
func (s *TaskService) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, userID, id)
}

// List returns a page of the user's tasks matching the filter.
func (s *TaskService) List(ctx context.Context, userID uuid.UUID, filter store.TaskFilter, offset, limit int) (*TaskPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	tasks, total, err := s.tasks.List(ctx, userID, filter, offset, limit)
	if err != nil {
		return nil, err
	}

	return &TaskPage{
		Tasks:  tasks,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}, nil
}

// Update modifies the task's title and description.
func (s *TaskService) Update(ctx context.Context, userID, id uuid.UUID, update TaskUpdate) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = update.Description
	}
	task.UpdatedAt = s.timeFunc().UTC()

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// SetCompleted flips the task's completion state. A task with incomplete
// subtasks cannot be completed; uncompleting is always allowed.
func (s *TaskService) SetCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if completed && !task.Completed {
		incomplete, err := s.tasks.CountIncompleteSubtasks(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count subtasks: %w", err)
		}
		if incomplete > 0 {
			return nil, ErrSubtasksIncomplete
		}
	}

	task.SetCompleted(completed)
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// Delete removes the task along with its subtasks.
func (s *TaskService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.tasks.Delete(ctx, userID, id)
}
