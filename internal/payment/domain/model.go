package domain

import (
	"errors"
	"strings"
	"time"
)

// EventStatus is the upstream processor's verdict on a payment attempt.
type EventStatus string

const (
	EventStatusSucceeded EventStatus = "succeeded"
	EventStatusFailed    EventStatus = "failed"
	EventStatusPending   EventStatus = "pending"
)

var (
	ErrInvalidEvent    = errors.New("invalid_event")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
)

// EventItem is one purchased line on a payment event.
type EventItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
}

// Event is the canonical payment notification consumed by the pipeline.
// It is created by the external payment processor and never mutated here.
// Amounts are in minor currency units.
type Event struct {
	PaymentID     string      `json:"payment_id"`
	MerchantID    string      `json:"merchant_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	Items         []EventItem `json:"items,omitempty"`
	Status        EventStatus `json:"status"`
	OrderID       string      `json:"order_id"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// Validate normalizes and checks the event shape. Status is not checked here;
// the pipeline decides what to do with non-succeeded events.
func (e *Event) Validate() error {
	if e == nil {
		return ErrInvalidEvent
	}
	e.PaymentID = strings.TrimSpace(e.PaymentID)
	if e.PaymentID == "" {
		return ErrInvalidEvent
	}
	e.MerchantID = strings.TrimSpace(e.MerchantID)
	if e.MerchantID == "" {
		return ErrInvalidEvent
	}
	e.OrderID = strings.TrimSpace(e.OrderID)
	if e.OrderID == "" {
		return ErrInvalidEvent
	}
	e.CustomerEmail = strings.TrimSpace(e.CustomerEmail)
	if e.CustomerEmail == "" || !strings.Contains(e.CustomerEmail, "@") {
		return ErrInvalidEvent
	}
	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if currency == "" {
		return ErrInvalidCurrency
	}
	e.Currency = currency
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	// When line items are present the amount must equal their sum.
	if len(e.Items) > 0 {
		var sum int64
		for _, item := range e.Items {
			if item.Quantity <= 0 || item.UnitAmount < 0 {
				return ErrInvalidEvent
			}
			sum += item.Quantity * item.UnitAmount
		}
		if sum != e.Amount {
			return ErrInvalidAmount
		}
	}
	switch e.Status {
	case EventStatusSucceeded, EventStatusFailed, EventStatusPending:
	default:
		return ErrInvalidEvent
	}
	return nil
}
