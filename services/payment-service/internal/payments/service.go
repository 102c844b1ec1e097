package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/services/payment-service/internal/model"
	"github.com/glamhq/glam/services/payment-service/internal/sadad"
	"github.com/glamhq/glam/services/payment-service/internal/storage"
	"github.com/google/uuid"
)

const (
	EventPaymentCompleted = "glam.payment.completed.v1"
	aggregateType         = "payment_transaction"
	provider              = "sadad"
	defaultCurrency       = "QAR"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = storage.ErrNotFound
	ErrInvalidChecksum     = sadad.ErrInvalidChecksum
	ErrDuplicateCallback   = storage.ErrDuplicateProviderEvent
	ErrCheckoutUnavailable = errors.New("payment gateway unavailable")
)

type Repository interface {
	Create(ctx context.Context, t model.Transaction) (model.Transaction, error)
	Get(ctx context.Context, id string) (model.Transaction, error)
	MarkFailed(ctx context.Context, id, message string) error
	Settle(ctx context.Context, evt storage.ProviderEvent, orderID string, fn storage.Settlement) (model.Transaction, error)
}

// Checkout hands a signed field set to the gateway and returns the customer redirect.
type Checkout interface {
	Enabled() bool
	CreateCheckout(ctx context.Context, fields map[string]string) (string, error)
}

type Service struct {
	repo     Repository
	cfg      sadad.Config
	checkout Checkout
	clock    clock.Clock
	loc      *time.Location
	metrics  *Metrics
	logger   *slog.Logger
}

func NewService(repo Repository, cfg sadad.Config, checkout Checkout, clk clock.Clock, loc *time.Location, metrics *Metrics, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{repo: repo, cfg: cfg, checkout: checkout, clock: clk, loc: loc, metrics: metrics, logger: logger}
}

type InitiateInput struct {
	BookingID string  `json:"booking_id"`
	Amount    float64 `json:"amount"`
	Email     string  `json:"email"`
	Mobile    string  `json:"mobile"`
}

type InitiateResult struct {
	TransactionID string            `json:"transaction_id"`
	OrderID       string            `json:"order_id"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	GatewayURL    string            `json:"gateway_url"`
	Fields        map[string]string `json:"fields"`
	Checksum      string            `json:"checksum"`
}

// Initiate opens a pending transaction and prepares the signed Sadad checkout.
func (s *Service) Initiate(ctx context.Context, caller httpx.Identity, in InitiateInput) (InitiateResult, error) {
	if !caller.Authenticated() {
		return InitiateResult{}, ErrUnauthenticated
	}
	in.BookingID = strings.TrimSpace(in.BookingID)
	if in.BookingID != "" {
		if _, err := uuid.Parse(in.BookingID); err != nil {
			return InitiateResult{}, fmt.Errorf("%w: booking_id must be a uuid", ErrInvalidInput)
		}
	}
	if in.Amount <= 0 {
		return InitiateResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	tx, err := s.repo.Create(ctx, model.Transaction{
		ID:         uuid.NewString(),
		OrderID:    newOrderID(s.clock.Now()),
		BookingID:  in.BookingID,
		CustomerID: caller.UserID,
		Amount:     in.Amount,
		Currency:   defaultCurrency,
		Status:     model.TransactionPending,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	fields, sum, err := s.cfg.SignedFields(sadad.Order{
		OrderID:    tx.OrderID,
		Amount:     tx.Amount,
		CustomerID: tx.CustomerID,
		Email:      strings.TrimSpace(in.Email),
		Mobile:     strings.TrimSpace(in.Mobile),
		Date:       s.clock.Now().In(s.loc),
	})
	if err != nil {
		return InitiateResult{}, err
	}
	out := InitiateResult{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		GatewayURL:    s.cfg.GatewayURL,
		Fields:        fields,
		Checksum:      sum,
	}

	if s.checkout != nil && s.checkout.Enabled() {
		redirect, err := s.checkout.CreateCheckout(ctx, fields)
		if err != nil {
			s.logger.Error("sadad checkout failed", "err", err, "order_id", tx.OrderID)
			if markErr := s.repo.MarkFailed(ctx, tx.ID, "checkout unavailable"); markErr != nil {
				s.logger.Error("mark transaction failed", "err", markErr, "transaction_id", tx.ID)
			}
			return InitiateResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		out.RedirectURL = redirect
	}
	s.metrics.Initiated.Inc()
	s.logger.Info("payment initiated", "transaction_id", tx.ID, "order_id", tx.OrderID, "booking_id", tx.BookingID)
	return out, nil
}

// Get returns the transaction when the caller owns it or is an admin.
func (s *Service) Get(ctx context.Context, caller httpx.Identity, id string) (model.Transaction, error) {
	if !caller.Authenticated() {
		return model.Transaction{}, ErrUnauthenticated
	}
	tx, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if tx.CustomerID != caller.UserID && !caller.IsAdmin() {
		return model.Transaction{}, ErrNotFound
	}
	return tx, nil
}

type completedPayload struct {
	TransactionID string                  `json:"transaction_id"`
	OrderID       string                  `json:"order_id"`
	BookingID     string                  `json:"booking_id,omitempty"`
	CustomerID    string                  `json:"customer_id"`
	Amount        float64                 `json:"amount"`
	Status        model.TransactionStatus `json:"status"`
	Message       string                  `json:"message,omitempty"`
}

func completedEvent(t model.Transaction) (*outbox.Event, error) {
	evt, err := outbox.NewEvent(aggregateType, t.ID, EventPaymentCompleted, completedPayload{
		TransactionID: t.ID,
		OrderID:       t.OrderID,
		BookingID:     t.BookingID,
		CustomerID:    t.CustomerID,
		Amount:        t.Amount,
		Status:        t.Status,
		Message:       t.Message,
	})
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

// ApplyCallback verifies a gateway callback and settles the matching transaction.
// Statuses other than success and failure leave the transaction pending. A success
// for a transaction the sweeper already expired still settles it.
func (s *Service) ApplyCallback(ctx context.Context, cb sadad.Callback) (model.Transaction, error) {
	if err := cb.Verify(s.cfg.MerchantKey); err != nil {
		s.metrics.Callbacks.WithLabelValues("invalid").Inc()
		return model.Transaction{}, ErrInvalidChecksum
	}
	if cb.OrderID == "" {
		return model.Transaction{}, fmt.Errorf("%w: missing ORDERID", ErrInvalidInput)
	}

	var recovered bool
	tx, err := s.repo.Settle(ctx, storage.ProviderEvent{
		Provider:        provider,
		ProviderEventID: cb.EventID(),
		EventType:       "callback." + strings.ToLower(cb.Status),
		Payload:         redact(cb.Values),
	}, cb.OrderID, func(t *model.Transaction) (*outbox.Event, error) {
		if t.Status.Terminal() {
			if !expiredBeforeSuccess(*t, cb) {
				return nil, nil
			}
			recovered = true
			t.Message = ""
		}
		switch cb.Status {
		case sadad.StatusSuccess:
			t.Status = model.TransactionSuccess
			if cb.Amount != "" && cb.Amount != sadad.FormatAmount(t.Amount) {
				t.Status = model.TransactionFailed
				t.Message = "amount mismatch"
			}
		case sadad.StatusFailure:
			t.Status = model.TransactionFailed
		default:
			return nil, nil
		}
		t.GatewayReference = cb.TransactionNumber
		if t.Message == "" {
			t.Message = cb.Message
		}
		return completedEvent(*t)
	})
	switch {
	case errors.Is(err, ErrDuplicateCallback):
		s.metrics.Callbacks.WithLabelValues("duplicate").Inc()
		s.logger.Info("duplicate sadad callback ignored", "order_id", cb.OrderID, "status", cb.Status)
		return model.Transaction{}, err
	case err != nil:
		s.metrics.Callbacks.WithLabelValues("error").Inc()
		return model.Transaction{}, err
	}
	if recovered {
		s.metrics.Callbacks.WithLabelValues("late_" + string(tx.Status)).Inc()
		s.logger.Warn("sadad callback settled an expired transaction", "order_id", cb.OrderID, "transaction_id", tx.ID, "status", tx.Status)
		return tx, nil
	}
	s.metrics.Callbacks.WithLabelValues(string(tx.Status)).Inc()
	s.logger.Info("sadad callback applied", "order_id", cb.OrderID, "transaction_id", tx.ID, "status", tx.Status)
	return tx, nil
}

func expiredBeforeSuccess(t model.Transaction, cb sadad.Callback) bool {
	return t.Status == model.TransactionFailed && t.Message == expiredMessage && cb.Status == sadad.StatusSuccess
}

// redact drops the checksum before the payload is stored.
func redact(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if k == sadad.ChecksumField {
			continue
		}
		out[k] = v
	}
	return out
}

func newOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return "GLAM" + strconv.FormatInt(now.Unix(), 10) + strings.ToUpper(suffix)
}
