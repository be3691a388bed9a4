// Package notify formats and dispatches branded invoice messages.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/invoiceflow/internal/clock"
	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/invoice/format"
	"github.com/smallbiznis/invoiceflow/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const messageTemplate = `<html>
<body style="font-family: sans-serif; color: #1a1f36;">
  <p>Hi {{.CustomerName}},</p>
  <p>Thanks for your payment. Your invoice <strong>{{.InvoiceNumber}}</strong>
  from <span style="color: {{.ThemeColor}};">{{.MerchantName}}</span> for
  <strong>{{.Total}}</strong> is attached.</p>
  <p>Questions? Reply to this email or reach us at {{.SenderEmail}}.</p>
  <p>&mdash; {{.MerchantName}}</p>
</body>
</html>
`

type messageView struct {
	CustomerName  string
	InvoiceNumber string
	MerchantName  string
	SenderEmail   string
	ThemeColor    template.CSS
	Total         string
}

// Notifier dispatches a branded invoice message over a delivery channel and
// records the attempt. It never decides retry policy; failures carry the
// provider's transient/permanent kind for the orchestrator.
type Notifier interface {
	Notify(ctx context.Context, invoice *invoicedomain.Invoice, document []byte, contentType string, attempt int) (*Record, error)
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Mail email.Provider
	Clk  clock.Clock
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	mail email.Provider
	clk  clock.Clock
	tmpl *template.Template
}

func NewService(p Params) Notifier {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("notify"),
		mail: p.Mail,
		clk:  p.Clk,
		tmpl: template.Must(template.New("invoice_message").Parse(messageTemplate)),
	}
}

func (s *Service) Notify(ctx context.Context, invoice *invoicedomain.Invoice, document []byte, contentType string, attempt int) (*Record, error) {
	if invoice == nil || len(document) == 0 {
		return nil, fmt.Errorf("%w: nothing to send", email.ErrPermanent)
	}

	subject := fmt.Sprintf("Invoice %s from %s", invoice.InvoiceNumber, invoice.Branding.DisplayName)
	body, err := s.renderBody(invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", email.ErrPermanent, err)
	}

	attachment := email.Attachment{
		Filename:    attachmentName(invoice, contentType),
		ContentType: contentType,
		Data:        document,
	}

	sendErr := s.mail.Send(ctx, []string{invoice.CustomerEmail}, subject, body, attachment)

	record := &Record{
		ID:        ulid.Make().String(),
		InvoiceID: invoice.ID,
		Recipient: invoice.CustomerEmail,
		Channel:   "email",
		Outcome:   OutcomeSent,
		Attempt:   attempt,
		CreatedAt: s.clk.Now(),
	}
	if sendErr != nil {
		record.Outcome = OutcomeFailed
		record.Error = sendErr.Error()
		record.FailureKind = FailureKindTransient
		if errors.Is(sendErr, email.ErrPermanent) {
			record.FailureKind = FailureKindPermanent
		}
	}

	// The dispatch already happened; a bookkeeping failure must not trigger
	// a duplicate send, so it is logged rather than returned.
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.log.Warn("failed to persist notification record",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}

	return record, sendErr
}

func (s *Service) renderBody(invoice *invoicedomain.Invoice) (string, error) {
	total, err := format.FormatMoney(invoice.Amount, invoice.Currency)
	if err != nil {
		return "", err
	}
	theme := invoice.Branding.ThemeColor
	if theme == "" {
		theme = "#1a1f36"
	}
	var buf bytes.Buffer
	err = s.tmpl.Execute(&buf, messageView{
		CustomerName:  invoice.CustomerName,
		InvoiceNumber: invoice.InvoiceNumber,
		MerchantName:  invoice.Branding.DisplayName,
		SenderEmail:   invoice.Branding.SenderEmail,
		ThemeColor:    template.CSS(theme),
		Total:         total,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func attachmentName(invoice *invoicedomain.Invoice, contentType string) string {
	ext := "html"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	return fmt.Sprintf("%s.%s", invoice.InvoiceNumber, ext)
}

var Module = fx.Module("notify",
	fx.Provide(NewService),
)
