package notify

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Outcome of one delivery attempt.
const (
	OutcomeSent   = "SENT"
	OutcomeFailed = "FAILED"
)

// Failure kinds mirror the mail provider's retryability contract.
const (
	FailureKindTransient = "TRANSIENT"
	FailureKindPermanent = "PERMANENT"
)

// Record captures one attempt to deliver an invoice to a customer. It is
// immutable once the outcome is recorded; retries create new records.
type Record struct {
	ID          string       `gorm:"primaryKey;type:text" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Recipient   string       `gorm:"type:text;not null" json:"recipient"`
	Channel     string       `gorm:"type:text;not null" json:"channel"`
	Outcome     string       `gorm:"type:text;not null" json:"outcome"`
	FailureKind string       `gorm:"type:text" json:"failure_kind,omitempty"`
	Error       string       `gorm:"type:text" json:"error,omitempty"`
	Attempt     int          `gorm:"not null" json:"attempt"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "notification_records" }
