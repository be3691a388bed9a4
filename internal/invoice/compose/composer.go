// Package compose builds canonical invoices from payment events.
package compose

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	brandingdomain "github.com/smallbiznis/invoiceflow/internal/branding/domain"
	"github.com/smallbiznis/invoiceflow/internal/clock"
	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/invoice/format"
	paymentdomain "github.com/smallbiznis/invoiceflow/internal/payment/domain"
)

// Composer turns a succeeded payment event plus merchant branding into an
// Invoice. It is a pure function of its inputs, the injected id source, and
// the injected clock; it performs no I/O.
type Composer struct {
	node           *snowflake.Node
	clk            clock.Clock
	numberTemplate string
	termsDays      int
}

func New(node *snowflake.Node, clk clock.Clock, termsDays int) *Composer {
	return &Composer{
		node:           node,
		clk:            clk,
		numberTemplate: format.DefaultInvoiceNumberTemplate,
		termsDays:      termsDays,
	}
}

// Compose validates the event and produces an Invoice carrying a value copy
// of the merchant's branding. The invoice number combines the issue date, the
// order id, and the snowflake id, which keeps it unique per merchant even
// when two events for the same merchant are composed concurrently.
func (c *Composer) Compose(event *paymentdomain.Event, branding *brandingdomain.MerchantBranding) (*invoicedomain.Invoice, error) {
	if event == nil || branding == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.Status != paymentdomain.EventStatusSucceeded {
		return nil, fmt.Errorf("%w: status %q", paymentdomain.ErrInvalidEvent, event.Status)
	}
	if !format.IsSupportedCurrency(event.Currency) {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrInvalidCurrency, event.Currency)
	}

	id := c.node.Generate()
	issuedAt := c.clk.Now()
	dueAt := issuedAt.Add(time.Duration(c.termsDays) * 24 * time.Hour)

	number, err := format.FormatInvoiceNumber(c.numberTemplate, issuedAt, event.OrderID, id.Int64())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidEvent, err)
	}

	items := event.Items
	if len(items) == 0 {
		items = []paymentdomain.EventItem{{
			Description: fmt.Sprintf("Order %s", event.OrderID),
			Quantity:    1,
			UnitAmount:  event.Amount,
		}}
	}
	lines := make([]invoicedomain.InvoiceItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, invoicedomain.InvoiceItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
			Amount:      item.Quantity * item.UnitAmount,
		})
	}
	rawItems, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidEvent, err)
	}

	return &invoicedomain.Invoice{
		ID:            id,
		MerchantID:    event.MerchantID,
		InvoiceNumber: number,
		PaymentID:     event.PaymentID,
		OrderID:       event.OrderID,
		CustomerName:  event.CustomerName,
		CustomerEmail: event.CustomerEmail,
		Amount:        event.Amount,
		Currency:      event.Currency,
		Status:        invoicedomain.InvoiceStatusPaid,
		Description:   fmt.Sprintf("Payment %s for order %s", event.PaymentID, event.OrderID),
		IssuedAt:      issuedAt,
		DueAt:         dueAt,
		Branding: invoicedomain.BrandingSnapshot{
			DisplayName: branding.DisplayName,
			LogoURL:     branding.LogoURL,
			ThemeColor:  branding.ThemeColor,
			SenderEmail: branding.SenderEmail,
			TaxID:       branding.TaxID,
			Address:     branding.Address,
			Website:     branding.Website,
		},
		Items:     rawItems,
		CreatedAt: issuedAt,
		UpdatedAt: issuedAt,
	}, nil
}
