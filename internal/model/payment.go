package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Balances go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	TransactionTypePayment = "payment"
	PaymentDescription     = "QR code payment"
)

// PointsScale is the number of fractional digits a balance or amount may
// carry. The SQL schema stores points as NUMERIC(20, 4).
const PointsScale = 4

type User struct {
	ID              string          `json:"userId"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Points          decimal.Decimal `json:"points"`
	LastTransaction *time.Time      `json:"lastTransaction,omitempty"`
}

type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	CashierID   string          `json:"cashierId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	UserData    map[string]any  `json:"userData"`
}

type RedeemRequest struct {
	QRData    string          `json:"qrData"`
	Amount    decimal.Decimal `json:"amount"`
	CashierID string          `json:"cashierId"`
}

type RedeemResult struct {
	UserID          string          `json:"userId"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   string          `json:"transactionId"`
	Timestamp       time.Time       `json:"timestamp"`
}

type Balance struct {
	UserID string          `json:"userId"`
	Points decimal.Decimal `json:"points"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Phone  string          `json:"phone"`
}

type History struct {
	UserID       string        `json:"userId"`
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"count"`
}

// PaymentEvent is published on the bus after a redemption commits.
type PaymentEvent struct {
	TransactionID string          `json:"transactionId"`
	UserID        string          `json:"userId"`
	CashierID     string          `json:"cashierId"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Timestamp     time.Time       `json:"timestamp"`
}
