package bookings

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

const EventPaymentCompleted = "glam.payment.completed.v1"

// PaymentCompleted is published by the payment service when a transaction settles.
type PaymentCompleted struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	BookingID     string `json:"booking_id"`
	CustomerID    string `json:"customer_id"`
	Status        string `json:"status"`
}

// HandlePaymentCompleted confirms the booking paid for by a successful transaction.
// Malformed payloads are logged and dropped so they do not block the partition.
func (s *Service) HandlePaymentCompleted(ctx context.Context, msg kafka.Message) error {
	var evt PaymentCompleted
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		s.logger.Error("invalid payment event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if evt.Status != "success" || evt.BookingID == "" {
		return nil
	}
	return s.ConfirmPaid(ctx, evt.BookingID, evt.TransactionID)
}
