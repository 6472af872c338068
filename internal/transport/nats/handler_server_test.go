package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalpay/internal/model"
	"loyalpay/internal/repository"
	"loyalpay/internal/service"
)

type reply struct {
	Success        bool             `json:"success"`
	Data           json.RawMessage  `json:"data"`
	Error          string           `json:"error"`
	CurrentBalance *decimal.Decimal `json:"currentBalance"`
	RequiredAmount *decimal.Decimal `json:"requiredAmount"`
}

func runEmbeddedServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: server.RANDOM_PORT, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	t.Cleanup(ns.Shutdown)
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")
	return ns.ClientURL()
}

func connect(t *testing.T, url string) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func request(t *testing.T, nc *nats.Conn, subject, body string) reply {
	t.Helper()
	msg, err := nc.Request(subject, []byte(body), 2*time.Second)
	require.NoError(t, err)
	var r reply
	require.NoError(t, json.Unmarshal(msg.Data, &r))
	return r
}

func TestHandler_StartServesRequests(t *testing.T) {
	url := runEmbeddedServer(t)

	store := repository.NewMemoryStore()
	require.NoError(t, store.SaveUser(context.Background(), model.User{ID: "u1", Name: "Elif", Points: decimal.NewFromInt(20)}))
	h := NewHandler(service.NewPayments(store, NewBus(connect(t, url)), 0), connect(t, url))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()

	client := connect(t, url)
	events, err := client.SubscribeSync(repository.TopicPaymentRedeemed)
	require.NoError(t, err)
	require.NoError(t, client.Flush())

	require.Eventually(t, func() bool {
		_, err := client.Request(SubjectBalance, []byte(`{"userId":"u1"}`), 200*time.Millisecond)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "handler never subscribed")

	r := request(t, client, SubjectRedeem, `{"qrData":"{\"userId\":\"u1\"}","amount":5,"cashierId":"c1"}`)
	require.True(t, r.Success, r.Error)
	var res model.RedeemResult
	require.NoError(t, json.Unmarshal(r.Data, &res))
	assert.True(t, decimal.NewFromInt(15).Equal(res.NewBalance))

	msg, err := events.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var event model.PaymentEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, res.TransactionID, event.TransactionID)

	r = request(t, client, SubjectRedeem, `{"qrData":"{\"userId\":\"u1\"}","amount":50,"cashierId":"c1"}`)
	assert.False(t, r.Success)
	assert.Equal(t, "insufficient balance", r.Error)
	require.NotNil(t, r.CurrentBalance)
	require.NotNil(t, r.RequiredAmount)
	assert.True(t, decimal.NewFromInt(15).Equal(*r.CurrentBalance))
	assert.True(t, decimal.NewFromInt(50).Equal(*r.RequiredAmount))

	r = request(t, client, SubjectBalance, `{"userId":"u1"}`)
	require.True(t, r.Success)
	var bal model.Balance
	require.NoError(t, json.Unmarshal(r.Data, &bal))
	assert.Equal(t, "Elif", bal.Name)
	assert.True(t, decimal.NewFromInt(15).Equal(bal.Points))

	r = request(t, client, SubjectHistory, `{"userId":"u1"}`)
	require.True(t, r.Success)
	var hist model.History
	require.NoError(t, json.Unmarshal(r.Data, &hist))
	assert.Equal(t, 1, hist.Count)

	r = request(t, client, SubjectBalance, `not json`)
	assert.False(t, r.Success)
	assert.Equal(t, "invalid request body", r.Error)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	require.Eventually(t, func() bool {
		_, err := client.Request(SubjectBalance, []byte(`{"userId":"u1"}`), 200*time.Millisecond)
		return errors.Is(err, nats.ErrNoResponders)
	}, 5*time.Second, 50*time.Millisecond, "subscriptions still active after shutdown")
}
