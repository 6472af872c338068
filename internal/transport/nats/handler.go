package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"loyalpay/internal/model"
	"loyalpay/internal/service"
	"loyalpay/internal/transport/response"
)

const (
	SubjectRedeem  = "payments.redeem"
	SubjectBalance = "payments.balance"
	SubjectHistory = "payments.history"

	queueGroup = "loyalpay"
)

type userQuery struct {
	UserID string `json:"userId"`
}

// Handler answers payment requests over NATS request/reply. Replies carry
// the same envelope as the HTTP API.
type Handler struct {
	svc  service.PaymentService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.PaymentService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to the request subjects and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	routes := map[string]func(context.Context, []byte) response.Envelope{
		SubjectRedeem:  h.redeem,
		SubjectBalance: h.balance,
		SubjectHistory: h.history,
	}

	for subject, fn := range routes {
		fn := fn
		sub, err := h.nc.QueueSubscribe(subject, queueGroup, func(m *nats.Msg) {
			reply, err := json.Marshal(fn(ctx, m.Data))
			if err != nil {
				slog.Error("nats: failed to encode reply", "subject", m.Subject, "error", err)
				return
			}
			if m.Reply == "" {
				return
			}
			if err := m.Respond(reply); err != nil {
				slog.Error("nats: failed to respond", "subject", m.Subject, "error", err)
			}
		})
		if err != nil {
			return err
		}
		h.subs = append(h.subs, sub)
	}

	slog.Info("NATS payment handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	slog.Info("NATS payment handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

func (h *Handler) redeem(ctx context.Context, data []byte) response.Envelope {
	var req model.RedeemRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return response.Fail("invalid request body")
	}
	res, err := h.svc.Redeem(ctx, req)
	if err != nil {
		_, env := response.FromError(err)
		return env
	}
	return response.OK(res)
}

func (h *Handler) balance(ctx context.Context, data []byte) response.Envelope {
	var q userQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return response.Fail("invalid request body")
	}
	res, err := h.svc.GetBalance(ctx, q.UserID)
	if err != nil {
		_, env := response.FromError(err)
		return env
	}
	return response.OK(res)
}

func (h *Handler) history(ctx context.Context, data []byte) response.Envelope {
	var q userQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return response.Fail("invalid request body")
	}
	res, err := h.svc.GetHistory(ctx, q.UserID)
	if err != nil {
		_, env := response.FromError(err)
		return env
	}
	return response.OK(res)
}
