package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalpay/internal/model"
)

type testStore interface {
	LedgerStore
	UserWriter
}

// runStoreSuite checks the LedgerStore contract. Every backend runs it.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) testStore) {
	t.Run("GetUserNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetUser(context.Background(), newUserID())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("SaveAndGetUser", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := seedUser(t, s, 100)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.Name, got.Name)
		assert.Equal(t, u.Email, got.Email)
		assert.Equal(t, u.Phone, got.Phone)
		assertDecimal(t, 100, got.Points)
		assert.Nil(t, got.LastTransaction)
	})

	t.Run("AtomicUpdateCommitsBalanceAndEntry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := seedUser(t, s, 100)

		var seen decimal.Decimal
		entry, err := s.AtomicUpdate(ctx, u.ID, func(cur model.User) (*Debit, error) {
			seen = cur.Points
			return debitOf(cur, 30), nil
		})
		require.NoError(t, err)
		assertDecimal(t, 100, seen)
		assert.NotEmpty(t, entry.ID)
		assert.False(t, entry.Timestamp.IsZero())
		assertDecimal(t, -30, entry.Amount)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assertDecimal(t, 70, got.Points)
		require.NotNil(t, got.LastTransaction)

		history, err := s.ListTransactions(ctx, u.ID, 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, entry.ID, history[0].ID)
		assert.Equal(t, u.ID, history[0].UserID)
		assert.Equal(t, "cashier-1", history[0].CashierID)
		assert.Equal(t, model.TransactionTypePayment, history[0].Type)
		assert.Equal(t, model.PaymentDescription, history[0].Description)
		assertDecimal(t, -30, history[0].Amount)
		assert.Equal(t, u.ID, history[0].UserData["userId"])
	})

	t.Run("AtomicUpdateKeepsFractionalScale", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := seedUser(t, s, 1)

		amount := decimal.New(1, -model.PointsScale)
		_, err := s.AtomicUpdate(ctx, u.ID, func(cur model.User) (*Debit, error) {
			d := debitOf(cur, 0)
			d.Points = cur.Points.Sub(amount)
			d.Entry.Amount = amount.Neg()
			return d, nil
		})
		require.NoError(t, err)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "0.9999", got.Points.String())

		history, err := s.ListTransactions(ctx, u.ID, 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.True(t, amount.Neg().Equal(history[0].Amount), "got %s", history[0].Amount)
	})

	t.Run("AtomicUpdateAbortLeavesNoTrace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := seedUser(t, s, 20)

		errAbort := errors.New("abort")
		_, err := s.AtomicUpdate(ctx, u.ID, func(model.User) (*Debit, error) {
			return nil, errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assertDecimal(t, 20, got.Points)
		assert.Nil(t, got.LastTransaction)

		history, err := s.ListTransactions(ctx, u.ID, 50)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("AtomicUpdateUnknownUser", func(t *testing.T) {
		s := newStore(t)
		called := false
		_, err := s.AtomicUpdate(context.Background(), newUserID(), func(cur model.User) (*Debit, error) {
			called = true
			return debitOf(cur, 1), nil
		})
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.False(t, called)
	})

	t.Run("HistoryNewestFirstAndLimited", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := seedUser(t, s, 100)
		other := seedUser(t, s, 100)

		var ids []string
		for i := 1; i <= 3; i++ {
			entry, err := s.AtomicUpdate(ctx, u.ID, func(cur model.User) (*Debit, error) {
				return debitOf(cur, int64(i)), nil
			})
			require.NoError(t, err)
			ids = append(ids, entry.ID)
		}
		_, err := s.AtomicUpdate(ctx, other.ID, func(cur model.User) (*Debit, error) {
			return debitOf(cur, 5), nil
		})
		require.NoError(t, err)

		history, err := s.ListTransactions(ctx, u.ID, 50)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{history[0].ID, history[1].ID, history[2].ID})

		limited, err := s.ListTransactions(ctx, u.ID, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, ids[2], limited[0].ID)

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assertDecimal(t, 94, got.Points)
	})

	t.Run("HistoryEmpty", func(t *testing.T) {
		s := newStore(t)
		history, err := s.ListTransactions(context.Background(), newUserID(), 50)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("ConcurrentUpdatesSerialize", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := seedUser(t, s, 100)

		errShort := errors.New("short")
		const workers = 10
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AtomicUpdate(ctx, u.ID, func(cur model.User) (*Debit, error) {
					if cur.Points.LessThan(decimal.NewFromInt(30)) {
						return nil, errShort
					}
					return debitOf(cur, 30), nil
				})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, errShort)
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, successes)
		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assertDecimal(t, 10, got.Points)

		history, err := s.ListTransactions(ctx, u.ID, 50)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})
}

func newUserID() string {
	return "user-" + uuid.NewString()
}

func seedUser(t *testing.T, s UserWriter, points int64) model.User {
	t.Helper()
	u := model.User{
		ID:     newUserID(),
		Name:   "Ayşe Yılmaz",
		Email:  "ayse@example.com",
		Phone:  "+905551112233",
		Points: decimal.NewFromInt(points),
	}
	require.NoError(t, s.SaveUser(context.Background(), u))
	return u
}

func debitOf(u model.User, amount int64) *Debit {
	a := decimal.NewFromInt(amount)
	return &Debit{
		Points: u.Points.Sub(a),
		Entry: model.Transaction{
			UserID:      u.ID,
			CashierID:   "cashier-1",
			Amount:      a.Neg(),
			Type:        model.TransactionTypePayment,
			Description: model.PaymentDescription,
			UserData:    map[string]any{"userId": u.ID},
		},
	}
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

func decimalOf(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
