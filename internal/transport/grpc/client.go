package grpc

import (
	"context"

	"github.com/shopspring/decimal"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"loyalpay/internal/model"
)

// Client calls a remote PaymentService, e.g. from a cashier terminal.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr and returns a Client and a cleanup function.
func Dial(addr string, opts ...grpc.DialOption) (*Client, func(), error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { conn.Close() }
	return &Client{conn: conn}, cleanup, nil
}

func (c *Client) Redeem(ctx context.Context, req model.RedeemRequest) (*model.RedeemResult, error) {
	out := new(model.RedeemResult)
	if err := c.conn.Invoke(ctx, methodRedeem, &req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	out := new(model.Balance)
	if err := c.conn.Invoke(ctx, methodGetBalance, &UserRequest{UserID: userID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetHistory(ctx context.Context, userID string) (*model.History, error) {
	out := new(model.History)
	if err := c.conn.Invoke(ctx, methodGetHistory, &UserRequest{UserID: userID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsufficientBalance extracts the balances carried by a FailedPrecondition
// reply. ok is false for any other error.
func InsufficientBalance(err error) (current, required decimal.Decimal, ok bool) {
	st, isStatus := status.FromError(err)
	if !isStatus {
		return decimal.Zero, decimal.Zero, false
	}
	for _, d := range st.Details() {
		info, isInfo := d.(*errdetails.ErrorInfo)
		if !isInfo || info.GetReason() != ReasonInsufficientBalance || info.GetDomain() != ErrorDomain {
			continue
		}
		var errCur, errReq error
		current, errCur = decimal.NewFromString(info.GetMetadata()["currentBalance"])
		required, errReq = decimal.NewFromString(info.GetMetadata()["requiredAmount"])
		if errCur != nil || errReq != nil {
			return decimal.Zero, decimal.Zero, false
		}
		return current, required, true
	}
	return decimal.Zero, decimal.Zero, false
}
