package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"loyalpay/internal/model"
)

const historyBucket = "user_history"

// BoltStore is an embedded single-file backend. Bolt allows one read-write
// transaction at a time, so AtomicUpdate never conflicts.
//
// Layout: users/<id> and transactions/<id> hold JSON documents;
// user_history/<len(userId), uint32 big endian><userId><unix nanos, big
// endian><txId> is an ordered index for the history query. The length
// prefix keeps one user's range from containing another's.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{usersCollection, transactionsCollection, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) SaveUser(_ context.Context, user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(usersCollection)).Put([]byte(user.ID), data)
	})
}

func (s *BoltStore) GetUser(_ context.Context, userID string) (*model.User, error) {
	var u *model.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		u, err = boltUser(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *BoltStore) ListTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	prefix := historyPrefix(userID)
	out := []model.Transaction{}

	err := s.db.View(func(tx *bolt.Tx) error {
		txs := tx.Bucket([]byte(transactionsCollection))
		c := tx.Bucket([]byte(historyBucket)).Cursor()

		// Walk the user's index range backwards, newest first. Every key in
		// the range sorts below prefix followed by 0xff bytes.
		k, id := c.Seek(append(prefix, bytes.Repeat([]byte{0xff}, 9)...))
		if k == nil {
			k, id = c.Last()
		} else {
			k, id = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix) && len(out) < limit; k, id = c.Prev() {
			v := txs.Get(id)
			if v == nil {
				return fmt.Errorf("transaction %s is indexed but missing", id)
			}
			var t model.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) AtomicUpdate(_ context.Context, userID string, fn MutateFunc) (*model.Transaction, error) {
	var committed *model.Transaction

	err := s.db.Update(func(tx *bolt.Tx) error {
		u, err := boltUser(tx, userID)
		if err != nil {
			return err
		}

		debit, err := fn(*u)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		u.Points = debit.Points
		u.LastTransaction = &now
		userData, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(usersCollection)).Put([]byte(userID), userData); err != nil {
			return err
		}

		entry := debit.Entry
		entry.ID = uuid.NewString()
		entry.Timestamp = now
		entryData, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(transactionsCollection)).Put([]byte(entry.ID), entryData); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(historyBucket)).Put(historyIndexKey(userID, now, entry.ID), []byte(entry.ID)); err != nil {
			return err
		}

		committed = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func boltUser(tx *bolt.Tx, userID string) (*model.User, error) {
	v := tx.Bucket([]byte(usersCollection)).Get([]byte(userID))
	if v == nil {
		return nil, ErrUserNotFound
	}
	var u model.User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, err
	}
	u.ID = userID
	return &u, nil
}

func historyPrefix(userID string) []byte {
	prefix := make([]byte, 0, 4+len(userID))
	prefix = binary.BigEndian.AppendUint32(prefix, uint32(len(userID)))
	return append(prefix, userID...)
}

func historyIndexKey(userID string, at time.Time, txID string) []byte {
	key := historyPrefix(userID)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	return append(key, txID...)
}
