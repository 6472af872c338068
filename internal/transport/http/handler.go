package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loyalpay/internal/model"
	"loyalpay/internal/service"
	"loyalpay/internal/transport/response"
)

const (
	serviceName    = "loyalpay"
	serviceVersion = "1.0.0"
	maxBodyBytes   = 1 << 20
)

type Handler struct {
	svc service.PaymentService
}

func NewHandler(svc service.PaymentService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.Describe)
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/process-payment", h.ProcessPayment)
		r.Get("/user-balance/{userId}", h.GetBalance)
		r.Get("/transaction-history/{userId}", h.GetHistory)
	})
}

func (h *Handler) Describe(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, response.OK(map[string]any{
		"name":    serviceName,
		"version": serviceVersion,
		"endpoints": []string{
			"POST /api/process-payment",
			"GET /api/user-balance/{userId}",
			"GET /api/transaction-history/{userId}",
		},
	}))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req model.RedeemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, response.Fail("invalid request body"))
		return
	}
	res, err := h.svc.Redeem(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, response.OK(res))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.svc.GetBalance(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, response.OK(bal))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.GetHistory(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, response.OK(hist))
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status, env := response.FromError(err)
	h.respondJSON(w, status, env)
}
