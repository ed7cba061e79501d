package service

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"

	"github.com/avolkov/taskhub-api/internal/domain"
	"github.com/avolkov/taskhub-api/internal/store"
)

// fakeUserStore is an in-memory store.UserStore.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (s *fakeUserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return store.ErrEmailExists
		}
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *fakeUserStore) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return store.ErrUserNotFound
	}
	for _, existing := range s.users {
		if existing.ID != user.ID && existing.Email == user.Email {
			return store.ErrEmailExists
		}
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *fakeUserStore) WithTx(tx *sql.Tx) store.UserStore { return s }

// fakeTokenStore is an in-memory store.VerificationTokenStore that runs
// status changes through the domain state machine like the real one.
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*domain.VerificationToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[uuid.UUID]*domain.VerificationToken)}
}

func (s *fakeTokenStore) Create(ctx context.Context, token *domain.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *token
	s.tokens[token.ID] = &clone
	return nil
}

func (s *fakeTokenStore) GetByDigest(ctx context.Context, digest string) (*domain.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.tokens {
		if token.TokenDigest == digest {
			clone := *token
			return &clone, nil
		}
	}
	return nil, store.ErrTokenNotFound
}

func (s *fakeTokenStore) Save(ctx context.Context, token *domain.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.ID]; !ok {
		return store.ErrTokenNotFound
	}
	clone := *token
	s.tokens[token.ID] = &clone
	return nil
}

func (s *fakeTokenStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return store.ErrTokenNotFound
	}
	return token.TransitionTo(status)
}

func (s *fakeTokenStore) BulkExpireActive(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && token.IsActive() {
			token.Status = domain.VerificationStatusExpired
			count++
		}
	}
	return count, nil
}

func (s *fakeTokenStore) WithTx(tx *sql.Tx) store.VerificationTokenStore { return s }

// get returns the stored token by id.
func (s *fakeTokenStore) get(id uuid.UUID) *domain.VerificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil
	}
	clone := *token
	return &clone
}

// activeCount returns how many of the user's tokens are still active.
func (s *fakeTokenStore) activeCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && token.IsActive() {
			count++
		}
	}
	return count
}

// fakeTaskStore is an in-memory store.TaskStore.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *fakeTaskStore) Create(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *fakeTaskStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	clone := *task
	return &clone, nil
}

func (s *fakeTaskStore) List(ctx context.Context, userID uuid.UUID, filter store.TaskFilter, offset, limit int) ([]*domain.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*domain.Task
	for _, task := range s.tasks {
		if task.UserID != userID {
			continue
		}
		if filter.TopLevelOnly && task.ParentID != nil {
			continue
		}
		if filter.ParentID != nil && (task.ParentID == nil || *task.ParentID != *filter.ParentID) {
			continue
		}
		clone := *task
		matched = append(matched, &clone)
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *fakeTaskStore) CountIncompleteSubtasks(ctx context.Context, taskID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, task := range s.tasks {
		if task.ParentID != nil && *task.ParentID == taskID && !task.Completed {
			count++
		}
	}
	return count, nil
}

func (s *fakeTaskStore) Update(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *fakeTaskStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.UserID != userID {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	for childID, child := range s.tasks {
		if child.ParentID != nil && *child.ParentID == id {
			delete(s.tasks, childID)
		}
	}
	return nil
}

func (s *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return s }

// fakeVerificationDispatcher records verification mails instead of
// queueing them.
type fakeVerificationDispatcher struct {
	mu       sync.Mutex
	links    []string
	tokenIDs []uuid.UUID
	failNext error
}

func (d *fakeVerificationDispatcher) EnqueueVerificationMail(ctx context.Context, tokenID uuid.UUID, to, name, link string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		return err
	}
	d.tokenIDs = append(d.tokenIDs, tokenID)
	d.links = append(d.links, link)
	return nil
}
