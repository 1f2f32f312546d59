package domain

import "github.com/shopspring/decimal"

type OrderCreatedEvent struct {
	EventID       string          `json:"eventId"`
	OrderID       int64           `json:"orderId"`
	UserID        int64           `json:"userId"`
	PaymentAmount decimal.Decimal `json:"paymentAmount"`
}

type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "SUCCESS"
	PaymentOutcomeFailed  PaymentOutcome = "FAILED"
)

// PaymentEvent is published by the payment pipeline once an attempt settles.
type PaymentEvent struct {
	EventID   string         `json:"eventId"`
	OrderID   int64          `json:"orderId"`
	PaymentID *string        `json:"paymentId"`
	Status    PaymentOutcome `json:"status"`
}
