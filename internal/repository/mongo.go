package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loyalpay/internal/model"
)

// MongoStore runs AtomicUpdate as a multi-document transaction. The driver's
// WithTransaction retries the callback on TransientTransactionError, which is
// how write conflicts between concurrent redemptions are resolved. Requires a
// replica set or sharded cluster.
type MongoStore struct {
	client       *mongo.Client
	users        *mongo.Collection
	transactions *mongo.Collection
}

type mongoUser struct {
	ID              string        `bson:"_id"`
	Name            string        `bson:"name,omitempty"`
	Email           string        `bson:"email,omitempty"`
	Phone           string        `bson:"phone,omitempty"`
	Points          bson.RawValue `bson:"points,omitempty"`
	LastTransaction *time.Time    `bson:"lastTransaction,omitempty"`
}

type mongoTransaction struct {
	ID          primitive.ObjectID   `bson:"_id"`
	UserID      string               `bson:"userId"`
	CashierID   string               `bson:"cashierId"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Type        string               `bson:"type"`
	Description string               `bson:"description"`
	Timestamp   time.Time            `bson:"timestamp"`
	UserData    bson.M               `bson:"userData"`
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:       client,
		users:        db.Collection(usersCollection),
		transactions: db.Collection(transactionsCollection),
	}
}

// EnsureIndexes creates the index backing the history query.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

func (r *MongoStore) SaveUser(ctx context.Context, user model.User) error {
	points, err := toDecimal128(user.Points)
	if err != nil {
		return err
	}
	set := bson.M{
		"name":   user.Name,
		"email":  user.Email,
		"phone":  user.Phone,
		"points": points,
	}
	if user.LastTransaction != nil {
		set["lastTransaction"] = *user.LastTransaction
	}
	_, err = r.users.UpdateByID(ctx, user.ID, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *MongoStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return r.findUser(ctx, userID)
}

func (r *MongoStore) findUser(ctx context.Context, userID string) (*model.User, error) {
	var doc mongoUser
	err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	points, err := decimalFromRaw(doc.Points)
	if err != nil {
		return nil, fmt.Errorf("points of %s: %w", userID, err)
	}
	return &model.User{
		ID:              doc.ID,
		Name:            doc.Name,
		Email:           doc.Email,
		Phone:           doc.Phone,
		Points:          points,
		LastTransaction: doc.LastTransaction,
	}, nil
}

func (r *MongoStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.transactions.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []model.Transaction
	for cursor.Next(ctx) {
		var doc mongoTransaction
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		amount, err := decimal.NewFromString(doc.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("amount of %s: %w", doc.ID.Hex(), err)
		}
		out = append(out, model.Transaction{
			ID:          doc.ID.Hex(),
			UserID:      doc.UserID,
			CashierID:   doc.CashierID,
			Amount:      amount,
			Type:        doc.Type,
			Description: doc.Description,
			Timestamp:   doc.Timestamp,
			UserData:    doc.UserData,
		})
	}
	return out, cursor.Err()
}

func (r *MongoStore) AtomicUpdate(ctx context.Context, userID string, fn MutateFunc) (*model.Transaction, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		user, err := r.findUser(sc, userID)
		if err != nil {
			return nil, err
		}

		debit, err := fn(*user)
		if err != nil {
			return nil, err
		}

		points, err := toDecimal128(debit.Points)
		if err != nil {
			return nil, err
		}
		amount, err := toDecimal128(debit.Entry.Amount)
		if err != nil {
			return nil, err
		}

		// Millisecond precision matches what BSON dates can hold.
		now := time.Now().UTC().Truncate(time.Millisecond)
		_, err = r.users.UpdateByID(sc, userID, bson.M{"$set": bson.M{
			"points":          points,
			"lastTransaction": now,
		}})
		if err != nil {
			return nil, fmt.Errorf("update balance: %w", err)
		}

		entry := debit.Entry
		doc := mongoTransaction{
			ID:          primitive.NewObjectID(),
			UserID:      entry.UserID,
			CashierID:   entry.CashierID,
			Amount:      amount,
			Type:        entry.Type,
			Description: entry.Description,
			Timestamp:   now,
			UserData:    entry.UserData,
		}
		if _, err := r.transactions.InsertOne(sc, doc); err != nil {
			return nil, fmt.Errorf("insert transaction: %w", err)
		}

		entry.ID = doc.ID.Hex()
		entry.Timestamp = now
		return &entry, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Transaction), nil
}

// Close is a no-op; the client is disconnected by the bootstrap code.
func (r *MongoStore) Close() error { return nil }

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d, err)
	}
	return v, nil
}

// decimalFromRaw accepts whichever numeric BSON type the points field was
// written with. A missing field is a zero balance.
func decimalFromRaw(v bson.RawValue) (decimal.Decimal, error) {
	switch v.Type {
	case 0, bsontype.Null, bsontype.Undefined:
		return decimal.Zero, nil
	case bsontype.Int32:
		return decimal.NewFromInt32(v.Int32()), nil
	case bsontype.Int64:
		return decimal.NewFromInt(v.Int64()), nil
	case bsontype.Double:
		return decimal.NewFromFloat(v.Double()), nil
	case bsontype.Decimal128:
		return decimal.NewFromString(v.Decimal128().String())
	default:
		return decimal.Zero, fmt.Errorf("unsupported points type %s", v.Type)
	}
}
