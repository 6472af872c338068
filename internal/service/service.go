package service

import (
	"context"

	"loyalpay/internal/model"
)

// PaymentService defines the redemption and query operations.
// All transport layers (HTTP, gRPC, NATS) depend on this interface, not on
// the concrete implementation.
type PaymentService interface {
	Redeem(ctx context.Context, req model.RedeemRequest) (*model.RedeemResult, error)
	GetBalance(ctx context.Context, userID string) (*model.Balance, error)
	GetHistory(ctx context.Context, userID string) (*model.History, error)
}
