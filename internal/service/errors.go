package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	msgMissingParameters = "missing parameters"
	msgAmountNotPositive = "amount must be positive"
	msgAmountTooPrecise  = "amount has too many decimal places"
	msgQRTooLarge        = "QR payload too large"
	msgInvalidQR         = "invalid QR format"
	msgNoUserInQR        = "user id not found in QR"
	msgUserNotFound      = "user not found"
	msgInsufficient      = "insufficient balance"
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports an unknown user.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// InsufficientBalanceError reports a balance below the requested amount.
type InsufficientBalanceError struct {
	CurrentBalance decimal.Decimal
	RequiredAmount decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: have %s, need %s", msgInsufficient, e.CurrentBalance, e.RequiredAmount)
}

// Message is the short form shown to API callers; the amounts travel in
// separate fields.
func (e *InsufficientBalanceError) Message() string { return msgInsufficient }

// StoreError wraps any failure of the underlying store, including
// exhausted conflict retries.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }
