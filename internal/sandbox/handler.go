package sandbox

import (
	"encoding/json"
	"net/http"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/auth"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the storefront API, provider webhooks and the sandbox controls.
type Handler struct {
	service Service
	tokens  *Tokens
	hub     *Hub
	metrics *observability.Metrics
}

func NewHandler(service Service, tokens *Tokens, hub *Hub, metrics *observability.Metrics) *Handler {
	return &Handler{service: service, tokens: tokens, hub: hub, metrics: metrics}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(RequireCustomer(h.tokens))
		r.Post("/api/v1/orders", h.createOrder)
		r.Get("/api/v1/orders/{id}", h.getOrder)
		r.Post("/api/v1/payments", h.initiatePayment)
		r.Get("/api/v1/payments/{id}", h.getPayment)
	})

	r.Get("/ws", h.hub.ServeHTTP)

	// Webhook endpoints, one per provider, no customer auth
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mtn-momo", h.webhook(ProviderMTNMomo))
		r.Post("/airtel-money", h.webhook(ProviderAirtel))
	})

	r.Route("/api/v1/sandbox", func(r chi.Router) {
		r.Post("/payments/{id}/settle", h.settlePayment)
		r.Post("/orders/{id}/status", h.advanceOrder)
		r.Post("/orders/{id}/rider", h.riderLocation)
		r.Post("/realtime/drop", h.dropConnections)
	})

	r.Get("/metrics", h.getMetrics)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.ErrValidation, "invalid request body", err)
	}
	return nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, err := h.tokens.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, auth.LoginResponse{Token: token})
}

// ── Orders ────────────────────────────────────────────────────────────────────

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.PlaceOrder(r.Context(), CustomerFrom(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), CustomerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, o)
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.InitiateRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Idempotency key from header (preferred) or body field
	if headerKey := r.Header.Get("Idempotency-Key"); headerKey != "" {
		req.IdempotencyKey = headerKey
	}
	res, err := h.service.InitiatePayment(r.Context(), CustomerFrom(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, res)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetPayment(r.Context(), CustomerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}

func (h *Handler) webhook(provider Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload WebhookPayload
		if err := decode(r, &payload); err != nil {
			httpx.RespondError(w, err)
			return
		}
		tx, err := h.service.HandleWebhook(r.Context(), provider, payload)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.Respond(w, http.StatusOK, tx)
	}
}

// ── Sandbox controls ──────────────────────────────────────────────────────────

func (h *Handler) settlePayment(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.SettlePayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.AdvanceOrder(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Respond(w, http.StatusOK, o)
}

func (h *Handler) riderLocation(w http.ResponseWriter, r *http.Request) {
	var loc RiderLocation
	if err := decode(r, &loc); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ReportRiderLocation(r.Context(), chi.URLParam(r, "id"), loc); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dropConnections(w http.ResponseWriter, r *http.Request) {
	httpx.Respond(w, http.StatusOK, map[string]int{"dropped": h.hub.DropAll()})
}

func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := h.metrics.Snapshot()
	snapshot["realtime_connections"] = int64(h.hub.Connections())
	httpx.Respond(w, http.StatusOK, snapshot)
}
