package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"loyalpay/internal/model"
	"loyalpay/internal/repository"
	"loyalpay/internal/service"
)

type mockService struct {
	err error
}

func (m *mockService) Redeem(ctx context.Context, req model.RedeemRequest) (*model.RedeemResult, error) {
	return nil, m.err
}
func (m *mockService) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	return nil, m.err
}
func (m *mockService) GetHistory(ctx context.Context, userID string) (*model.History, error) {
	return nil, m.err
}

func startBufconn(t *testing.T, svc service.PaymentService) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer("bufnet", svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	client, cleanup, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return client
}

func TestServer_RedeemAndQuery(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.SaveUser(context.Background(), model.User{
		ID:     "u1",
		Name:   "Can Öztürk",
		Points: decimal.NewFromInt(100),
	}))
	client := startBufconn(t, service.NewPayments(store, nil, 0))
	ctx := context.Background()

	res, err := client.Redeem(ctx, model.RedeemRequest{
		QRData:    `{"userId":"u1"}`,
		Amount:    decimal.NewFromInt(30),
		CashierID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.True(t, decimal.NewFromInt(70).Equal(res.NewBalance))
	assert.NotEmpty(t, res.TransactionID)

	bal, err := client.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(70).Equal(bal.Points))
	assert.Equal(t, "Can Öztürk", bal.Name)

	hist, err := client.GetHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, hist.Count)
	require.Len(t, hist.Transactions, 1)
	assert.Equal(t, res.TransactionID, hist.Transactions[0].ID)
}

func TestServer_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", &service.ValidationError{Message: "invalid QR format"}, codes.InvalidArgument},
		{"not found", &service.NotFoundError{Message: "user not found"}, codes.NotFound},
		{"insufficient", &service.InsufficientBalanceError{
			CurrentBalance: decimal.NewFromInt(20),
			RequiredAmount: decimal.NewFromInt(30),
		}, codes.FailedPrecondition},
		{"store", &service.StoreError{Op: "redeem", Err: errors.New("boom")}, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startBufconn(t, &mockService{err: tt.err})

			_, err := client.Redeem(context.Background(), model.RedeemRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestServer_InsufficientBalanceDetails(t *testing.T) {
	client := startBufconn(t, &mockService{err: &service.InsufficientBalanceError{
		CurrentBalance: decimal.RequireFromString("20.5"),
		RequiredAmount: decimal.NewFromInt(30),
	}})

	_, err := client.Redeem(context.Background(), model.RedeemRequest{})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	current, required, ok := InsufficientBalance(err)
	require.True(t, ok)
	assert.Equal(t, "20.5", current.String())
	assert.Equal(t, "30", required.String())

	_, _, ok = InsufficientBalance(status.Error(codes.FailedPrecondition, "insufficient balance"))
	assert.False(t, ok)
	_, _, ok = InsufficientBalance(errors.New("boom"))
	assert.False(t, ok)
}

func TestServer_InternalErrorHidesCause(t *testing.T) {
	client := startBufconn(t, &mockService{err: &service.StoreError{Op: "get balance", Err: errors.New("dial tcp 10.0.0.5:5432")}})

	_, err := client.GetBalance(context.Background(), "u1")
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "10.0.0.5")
}
