package model

import "time"

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	return s == TransactionSuccess || s == TransactionFailed
}

type Transaction struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	BookingID        string            `json:"booking_id,omitempty"`
	CustomerID       string            `json:"customer_id"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	Status           TransactionStatus `json:"status"`
	GatewayReference string            `json:"gateway_reference,omitempty"`
	Message          string            `json:"message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
