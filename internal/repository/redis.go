package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"loyalpay/internal/model"
)

const defaultRedisRetries = 10

// RedisStore keeps each user in a hash and each transaction as a JSON string,
// indexed per user by a sorted set scored on commit time. AtomicUpdate is
// optimistic: WATCH the user hash, read, then MULTI/EXEC. A concurrent write
// to the hash aborts EXEC and the whole read-mutate-write is retried.
type RedisStore struct {
	redisClient *redis.Client
	maxRetries  int
}

func NewRedisStore(rdb *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = defaultRedisRetries
	}
	return &RedisStore{redisClient: rdb, maxRetries: maxRetries}
}

func userKey(userID string) string        { return fmt.Sprintf("%s:%s", usersCollection, userID) }
func transactionKey(id string) string     { return fmt.Sprintf("%s:%s", transactionsCollection, id) }
func userHistoryKey(userID string) string { return fmt.Sprintf("%s:%s:history", usersCollection, userID) }

func (r *RedisStore) SaveUser(ctx context.Context, user model.User) error {
	fields := map[string]interface{}{
		"name":   user.Name,
		"email":  user.Email,
		"phone":  user.Phone,
		"points": user.Points.String(),
	}
	if user.LastTransaction != nil {
		fields["lastTransaction"] = user.LastTransaction.Format(time.RFC3339Nano)
	}
	if err := r.redisClient.HSet(ctx, userKey(user.ID), fields).Err(); err != nil {
		return fmt.Errorf("failed to save user to Redis: %w", err)
	}
	return nil
}

func (r *RedisStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return readUser(ctx, r.redisClient, userID)
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readUser(ctx context.Context, c hashReader, userID string) (*model.User, error) {
	fields, err := c.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read user from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUserNotFound
	}

	u := model.User{
		ID:     userID,
		Name:   fields["name"],
		Email:  fields["email"],
		Phone:  fields["phone"],
		Points: decimal.Zero,
	}
	if p := fields["points"]; p != "" {
		if u.Points, err = decimal.NewFromString(p); err != nil {
			return nil, fmt.Errorf("points of %s: %w", userID, err)
		}
	}
	if lt := fields["lastTransaction"]; lt != "" {
		t, err := time.Parse(time.RFC3339Nano, lt)
		if err != nil {
			return nil, fmt.Errorf("lastTransaction of %s: %w", userID, err)
		}
		u.LastTransaction = &t
	}
	return &u, nil
}

func (r *RedisStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	ids, err := r.redisClient.ZRevRange(ctx, userHistoryKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = transactionKey(id)
	}
	raw, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}

	out := make([]model.Transaction, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("transaction %s is indexed but missing", ids[i])
		}
		var t model.Transaction
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", ids[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *RedisStore) AtomicUpdate(ctx context.Context, userID string, fn MutateFunc) (*model.Transaction, error) {
	key := userKey(userID)

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		var committed *model.Transaction

		err := r.redisClient.Watch(ctx, func(tx *redis.Tx) error {
			user, err := readUser(ctx, tx, userID)
			if err != nil {
				return err
			}

			debit, err := fn(*user)
			if err != nil {
				return err
			}

			now, err := tx.Time(ctx).Result()
			if err != nil {
				return fmt.Errorf("read server time: %w", err)
			}
			now = now.UTC()

			entry := debit.Entry
			entry.ID = uuid.NewString()
			entry.Timestamp = now
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encode transaction: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					"points", debit.Points.String(),
					"lastTransaction", now.Format(time.RFC3339Nano),
				)
				pipe.Set(ctx, transactionKey(entry.ID), data, 0)
				pipe.ZAdd(ctx, userHistoryKey(userID), redis.Z{
					Score:  float64(now.UnixMicro()),
					Member: entry.ID,
				})
				return nil
			})
			if err != nil {
				return err
			}
			committed = &entry
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return committed, nil
	}
	return nil, ErrConflict
}

// Close is a no-op; the client is closed by the bootstrap code.
func (r *RedisStore) Close() error { return nil }
