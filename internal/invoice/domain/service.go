package domain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound       = errors.New("invoice_not_found")
	ErrStore          = errors.New("invoice_store_error")
	ErrTerminalStatus = errors.New("invoice_status_terminal")
	ErrRender         = errors.New("invoice_render_error")
)

// Store persists invoices. Save is an upsert keyed by invoice id so retried
// saves of the same invoice never duplicate rows.
type Store interface {
	Save(ctx context.Context, invoice *Invoice) error
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Invoice, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, next InvoiceStatus) error
}

// DocumentRenderer turns an invoice and its captured branding snapshot into a
// durable document. Rendering the same invoice twice must yield identical
// bytes; on malformed input it returns ErrRender and writes nothing.
type DocumentRenderer interface {
	Render(ctx context.Context, invoice *Invoice) ([]byte, error)
	ContentType() string
}

// LineItems decodes the JSON items column.
func (i *Invoice) LineItems() ([]InvoiceItem, error) {
	if len(i.Items) == 0 {
		return nil, nil
	}
	var items []InvoiceItem
	if err := json.Unmarshal(i.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}
