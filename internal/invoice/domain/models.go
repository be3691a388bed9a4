// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// CanTransitionTo reports whether moving to next is a legal lifecycle step.
// PAID is terminal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case InvoiceStatusDraft:
		return next == InvoiceStatusPending || next == InvoiceStatusPaid
	case InvoiceStatusPending:
		return next == InvoiceStatusPaid || next == InvoiceStatusOverdue
	case InvoiceStatusOverdue:
		return next == InvoiceStatusPaid
	case InvoiceStatusPaid:
		return false
	default:
		return false
	}
}

// BrandingSnapshot captures the merchant's presentation identity at invoice
// creation time. It is a value copy, never a live reference, so historical
// invoices keep their original appearance when branding changes later.
type BrandingSnapshot struct {
	DisplayName string `gorm:"column:display_name;type:text" json:"display_name"`
	LogoURL     string `gorm:"column:logo_url;type:text" json:"logo_url,omitempty"`
	ThemeColor  string `gorm:"column:theme_color;type:text" json:"theme_color,omitempty"`
	SenderEmail string `gorm:"column:sender_email;type:text" json:"sender_email"`
	TaxID       string `gorm:"column:tax_id;type:text" json:"tax_id,omitempty"`
	Address     string `gorm:"column:address;type:text" json:"address,omitempty"`
	Website     string `gorm:"column:website;type:text" json:"website,omitempty"`
}

// InvoiceItem is one line on an invoice. Items are stored as a JSON column so
// an invoice saves and re-renders as a single atomic record.
type InvoiceItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
	Amount      int64  `json:"amount"`
}

// Invoice is the canonical billing record produced per successful payment.
// Never deleted; re-renders and re-sends reuse the same row.
type Invoice struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	MerchantID    string            `gorm:"type:text;not null;index;uniqueIndex:ux_invoice_merchant_number,priority:1" json:"merchant_id"`
	InvoiceNumber string            `gorm:"type:text;not null;uniqueIndex:ux_invoice_merchant_number,priority:2" json:"invoice_number"`
	PaymentID     string            `gorm:"type:text;not null;uniqueIndex" json:"payment_id"`
	OrderID       string            `gorm:"type:text;not null" json:"order_id"`
	CustomerName  string            `gorm:"type:text;not null" json:"customer_name"`
	CustomerEmail string            `gorm:"type:text;not null" json:"customer_email"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Currency      string            `gorm:"type:text;not null" json:"currency"`
	Status        InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	Description   string            `gorm:"type:text" json:"description,omitempty"`
	IssuedAt      time.Time         `gorm:"not null" json:"issued_at"`
	DueAt         time.Time         `gorm:"not null" json:"due_at"`
	Branding      BrandingSnapshot  `gorm:"embedded;embeddedPrefix:branding_" json:"branding"`
	Items         datatypes.JSON    `gorm:"type:jsonb" json:"items,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
