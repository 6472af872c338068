package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"loyalpay/internal/model"
	"loyalpay/internal/repository"
)

const (
	HistoryLimit      = 50
	DefaultMaxQRBytes = 4096
)

// Payments implements PaymentService on top of a repository.LedgerStore.
type Payments struct {
	store      repository.LedgerStore
	bus        repository.MessageBus
	maxQRBytes int
}

func NewPayments(store repository.LedgerStore, bus repository.MessageBus, maxQRBytes int) *Payments {
	if bus == nil {
		bus = repository.NopBus{}
	}
	if maxQRBytes <= 0 {
		maxQRBytes = DefaultMaxQRBytes
	}
	return &Payments{store: store, bus: bus, maxQRBytes: maxQRBytes}
}

// Redeem debits req.Amount from the user named in the QR payload and appends
// one transaction record, both in a single store transaction.
//
// The balance check before AtomicUpdate only saves a round trip for obvious
// rejections. The check inside the mutate function is the one that counts:
// it sees the snapshot the write is based on.
func (p *Payments) Redeem(ctx context.Context, req model.RedeemRequest) (*model.RedeemResult, error) {
	if req.QRData == "" || req.Amount.IsZero() || req.CashierID == "" {
		return nil, &ValidationError{Message: msgMissingParameters}
	}
	if !req.Amount.IsPositive() {
		return nil, &ValidationError{Message: msgAmountNotPositive}
	}
	// Finer amounts would be rounded away by the store, leaving a log entry
	// that debits nothing.
	if !req.Amount.Equal(req.Amount.Truncate(model.PointsScale)) {
		return nil, &ValidationError{Message: msgAmountTooPrecise}
	}

	payload, userID, err := p.decodeQR(req.QRData)
	if err != nil {
		return nil, err
	}

	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return nil, classify("get user", err)
	}
	if user.Points.LessThan(req.Amount) {
		return nil, &InsufficientBalanceError{CurrentBalance: user.Points, RequiredAmount: req.Amount}
	}

	var previous decimal.Decimal
	entry, err := p.store.AtomicUpdate(ctx, userID, func(u model.User) (*repository.Debit, error) {
		if u.Points.LessThan(req.Amount) {
			return nil, &InsufficientBalanceError{CurrentBalance: u.Points, RequiredAmount: req.Amount}
		}
		previous = u.Points
		return &repository.Debit{
			Points: u.Points.Sub(req.Amount),
			Entry: model.Transaction{
				UserID:      userID,
				CashierID:   req.CashierID,
				Amount:      req.Amount.Neg(),
				Type:        model.TransactionTypePayment,
				Description: model.PaymentDescription,
				UserData:    payload,
			},
		}, nil
	})
	if err != nil {
		return nil, classify("redeem", err)
	}

	result := &model.RedeemResult{
		UserID:          userID,
		PreviousBalance: previous,
		NewBalance:      previous.Sub(req.Amount),
		Amount:          req.Amount,
		TransactionID:   entry.ID,
		Timestamp:       entry.Timestamp,
	}

	slog.Info("payment redeemed",
		"user_id", userID,
		"cashier_id", req.CashierID,
		"amount", req.Amount.String(),
		"new_balance", result.NewBalance.String(),
		"transaction_id", entry.ID,
	)
	p.publish(result, req.CashierID)

	return result, nil
}

func (p *Payments) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	if userID == "" {
		return nil, &ValidationError{Message: msgMissingParameters}
	}
	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return nil, classify("get balance", err)
	}
	return &model.Balance{
		UserID: userID,
		Points: user.Points,
		Name:   user.Name,
		Email:  user.Email,
		Phone:  user.Phone,
	}, nil
}

func (p *Payments) GetHistory(ctx context.Context, userID string) (*model.History, error) {
	if userID == "" {
		return nil, &ValidationError{Message: msgMissingParameters}
	}
	txs, err := p.store.ListTransactions(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, classify("get history", err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return &model.History{UserID: userID, Transactions: txs, Count: len(txs)}, nil
}

// decodeQR parses the scanned payload. Numbers are kept as json.Number so
// the copy stored with the transaction is byte-faithful.
func (p *Payments) decodeQR(raw string) (map[string]any, string, error) {
	if len(raw) > p.maxQRBytes {
		return nil, "", &ValidationError{Message: msgQRTooLarge}
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil || dec.More() {
		return nil, "", &ValidationError{Message: msgInvalidQR}
	}

	var userID string
	switch v := payload["userId"].(type) {
	case string:
		userID = v
	case json.Number:
		userID = v.String()
	}
	if userID == "" {
		return nil, "", &ValidationError{Message: msgNoUserInQR}
	}
	return payload, userID, nil
}

func (p *Payments) publish(res *model.RedeemResult, cashierID string) {
	data, err := json.Marshal(model.PaymentEvent{
		TransactionID: res.TransactionID,
		UserID:        res.UserID,
		CashierID:     cashierID,
		Amount:        res.Amount,
		NewBalance:    res.NewBalance,
		Timestamp:     res.Timestamp,
	})
	if err != nil {
		slog.Error("failed to encode payment event", "error", err)
		return
	}
	// The debit is already committed; a lost event must not fail it.
	if err := p.bus.Publish(repository.TopicPaymentRedeemed, data); err != nil {
		slog.Error("failed to publish payment event",
			"transaction_id", res.TransactionID,
			"error", err,
		)
	}
}

// classify keeps domain errors as they are and turns everything else into
// a StoreError.
func classify(op string, err error) error {
	var (
		verr *ValidationError
		nerr *NotFoundError
		ierr *InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.As(err, &nerr):
		return nerr
	case errors.As(err, &ierr):
		return ierr
	case errors.Is(err, repository.ErrUserNotFound):
		return &NotFoundError{Message: msgUserNotFound}
	default:
		return &StoreError{Op: op, Err: err}
	}
}
