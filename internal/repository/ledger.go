package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"loyalpay/internal/model"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
)

var (
	ErrUserNotFound = errors.New("user not found in store")
	ErrConflict     = errors.New("transaction conflict: retries exhausted")
)

// Debit is what a MutateFunc asks the store to commit: the user's new
// balance and the log entry recording it. Entry.ID and Entry.Timestamp are
// assigned by the store.
type Debit struct {
	Points decimal.Decimal
	Entry  model.Transaction
}

// MutateFunc receives the user as read inside the store transaction.
// Returning an error aborts the transaction; the error reaches the caller
// of AtomicUpdate unchanged. Stores that retry on conflict call it again
// with a fresh snapshot.
type MutateFunc func(user model.User) (*Debit, error)

// LedgerStore is the storage capability the payment protocol is written
// against. Every backend must commit the balance write and the log append
// of AtomicUpdate together or not at all.
type LedgerStore interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
	AtomicUpdate(ctx context.Context, userID string, fn MutateFunc) (*model.Transaction, error)
	Close() error
}

// UserWriter is implemented by stores that can seed user records. Provisioning
// lives outside the service; this exists for fixtures and local setups.
type UserWriter interface {
	SaveUser(ctx context.Context, user model.User) error
}
