package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"loyalpay/internal/model"
)

// MemoryStore keeps users and transactions in process memory. A single
// mutex serializes AtomicUpdate, which makes it suitable for one-process
// deployments and tests only.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]model.User
	transactions map[string][]model.Transaction
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]model.User),
		transactions: make(map[string][]model.Transaction),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) SaveUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Entries are appended in commit order; walk them backwards.
	all := s.transactions[userID]
	var log []model.Transaction
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(log) < limit); i-- {
		log = append(log, all[i])
	}
	return log, nil
}

func (s *MemoryStore) AtomicUpdate(ctx context.Context, userID string, fn MutateFunc) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	debit, err := fn(u)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u.Points = debit.Points
	u.LastTransaction = &now

	entry := debit.Entry
	entry.ID = uuid.NewString()
	entry.Timestamp = now

	s.users[userID] = u
	s.transactions[userID] = append(s.transactions[userID], entry)
	return &entry, nil
}

func (s *MemoryStore) Close() error { return nil }
