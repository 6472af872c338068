package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"loyalpay/internal/model"
)

// PostgresStore locks the user row with SELECT ... FOR UPDATE, so concurrent
// redemptions for one user queue on the row lock instead of retrying.
type PostgresStore struct {
	dbPool *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{dbPool: db}
}

const selectUserSQL = `
	SELECT id, name, email, phone, COALESCE(points, 0)::text, last_transaction
	FROM users WHERE id = $1`

func (r *PostgresStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return scanUser(r.dbPool.QueryRow(ctx, selectUserSQL, userID))
}

func (r *PostgresStore) SaveUser(ctx context.Context, user model.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, points, last_transaction)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			points = EXCLUDED.points,
			last_transaction = EXCLUDED.last_transaction`

	_, err := r.dbPool.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.Phone, user.Points.String(), user.LastTransaction)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	query := `
		SELECT id::text, user_id, cashier_id, amount::text, type, description, timestamp, user_data
		FROM transactions
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.dbPool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t        model.Transaction
			amount   string
			userData []byte
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.CashierID, &amount, &t.Type, &t.Description, &t.Timestamp, &userData); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of %s: %w", t.ID, err)
		}
		if err := json.Unmarshal(userData, &t.UserData); err != nil {
			return nil, fmt.Errorf("decode user_data of %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresStore) AtomicUpdate(ctx context.Context, userID string, fn MutateFunc) (*model.Transaction, error) {
	var committed *model.Transaction

	err := pgx.BeginFunc(ctx, r.dbPool, func(tx pgx.Tx) error {
		user, err := scanUser(tx.QueryRow(ctx, selectUserSQL+" FOR UPDATE", userID))
		if err != nil {
			return err
		}

		debit, err := fn(*user)
		if err != nil {
			return err
		}

		var now time.Time
		err = tx.QueryRow(ctx,
			`UPDATE users SET points = $2::numeric, last_transaction = clock_timestamp() WHERE id = $1 RETURNING last_transaction`,
			userID, debit.Points.String(),
		).Scan(&now)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		entry := debit.Entry
		userData, err := json.Marshal(entry.UserData)
		if err != nil {
			return fmt.Errorf("encode user_data: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO transactions (user_id, cashier_id, amount, type, description, timestamp, user_data)
			VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
			RETURNING id::text`,
			entry.UserID, entry.CashierID, entry.Amount.String(), entry.Type, entry.Description, now, userData,
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		entry.Timestamp = now
		committed = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// Close is a no-op; the pool is owned and closed by the bootstrap code.
func (r *PostgresStore) Close() error { return nil }

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u      model.User
		points string
		last   *time.Time
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &points, &last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database query error: %w", err)
	}
	p, err := decimal.NewFromString(points)
	if err != nil {
		return nil, fmt.Errorf("parse points of %s: %w", u.ID, err)
	}
	u.Points = p
	u.LastTransaction = last
	return &u, nil
}
