package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/glamhq/glam/services/payment-service/internal/payments"
	"github.com/glamhq/glam/services/payment-service/internal/sadad"
	"github.com/google/uuid"
)

type PaymentHandler struct {
	svc       *payments.Service
	poller    *payments.Poller
	returnURL string
	logger    *slog.Logger
}

// NewPaymentHandler builds the payment routes. When returnURL is set, gateway callbacks
// redirect the customer there instead of answering with JSON.
func NewPaymentHandler(svc *payments.Service, poller *payments.Poller, returnURL string, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, poller: poller, returnURL: returnURL, logger: logger}
}

func (h *PaymentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/payments/sadad/initiate", h.Initiate)
	mux.HandleFunc("POST /api/v1/payments/sadad/callback", h.Callback)
	mux.HandleFunc("GET /api/v1/payments/transactions/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/payments/transactions/{id}/await", h.Await)
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	caller := httpx.IdentityFromRequest(r)
	if !caller.Authenticated() {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var in payments.InitiateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.svc.Initiate(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	tx, err := h.svc.Get(r.Context(), httpx.IdentityFromRequest(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}

// Await blocks until the transaction settles or the poll budget runs out.
func (h *PaymentHandler) Await(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Get(r.Context(), httpx.IdentityFromRequest(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.poller.Await(r.Context(), id)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	cb := sadad.ParseCallback(r.PostForm)
	tx, err := h.svc.ApplyCallback(r.Context(), cb)
	switch {
	case errors.Is(err, payments.ErrDuplicateCallback):
		h.respondCallback(w, r, cb.OrderID, "", "")
		return
	case err != nil:
		h.writeError(w, r, err)
		return
	}
	h.respondCallback(w, r, tx.OrderID, tx.Status, tx.ID)
}

func (h *PaymentHandler) respondCallback(w http.ResponseWriter, r *http.Request, orderID string, status model.TransactionStatus, txID string) {
	if h.returnURL == "" {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"order_id":       orderID,
			"status":         status,
			"transaction_id": txID,
			"duplicate":      txID == "",
		})
		return
	}
	target, err := url.Parse(h.returnURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := target.Query()
	q.Set("order_id", orderID)
	if status != "" {
		q.Set("status", string(status))
	}
	if txID != "" {
		q.Set("transaction_id", txID)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payments.ErrUnauthenticated):
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, payments.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, payments.ErrInvalidChecksum):
		http.Error(w, "invalid checksum", http.StatusBadRequest)
	case errors.Is(err, payments.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, payments.ErrCheckoutUnavailable):
		h.logger.Warn("checkout unavailable", "err", err)
		http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("request failed", "err", err, "method", r.Method, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func transactionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}
