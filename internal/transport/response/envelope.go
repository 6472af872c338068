// Package response holds the JSON envelope shared by the HTTP and NATS
// transports, and the mapping from service errors onto it.
package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"loyalpay/internal/service"
)

const msgInternal = "internal server error"

type Envelope struct {
	Success        bool             `json:"success"`
	Data           any              `json:"data,omitempty"`
	Error          string           `json:"error,omitempty"`
	CurrentBalance *decimal.Decimal `json:"currentBalance,omitempty"`
	RequiredAmount *decimal.Decimal `json:"requiredAmount,omitempty"`
}

func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

func Fail(message string) Envelope {
	return Envelope{Success: false, Error: message}
}

// FromError maps a service error to an HTTP status and an envelope.
// Store failures are logged here and reported without internals.
func FromError(err error) (int, Envelope) {
	var (
		verr *service.ValidationError
		nerr *service.NotFoundError
		ierr *service.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, Fail(verr.Message)
	case errors.As(err, &nerr):
		return http.StatusNotFound, Fail(nerr.Message)
	case errors.As(err, &ierr):
		env := Fail(ierr.Message())
		env.CurrentBalance = &ierr.CurrentBalance
		env.RequiredAmount = &ierr.RequiredAmount
		return http.StatusBadRequest, env
	default:
		slog.Error("request failed", "error", err)
		return http.StatusInternalServerError, Fail(msgInternal)
	}
}
