package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/invoice/format"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Invoice.InvoiceNumber}}</title>
  <style>
    :root {
      --primary: {{.ThemeColor}};
      --font: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    }
    * { box-sizing: border-box; }
    body { margin: 0; padding: 40px; font-family: var(--font); color: #1a1f36; background: #f7f9fc; }
    .invoice-card { background: #ffffff; max-width: 760px; margin: 0 auto; padding: 60px; border-radius: 4px; }
    .header { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .header-left h1 { margin: 0; font-size: 24px; font-weight: 700; }
    .header-right { text-align: right; font-weight: 600; color: var(--primary); font-size: 16px; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; margin-bottom: 6px; font-weight: 600; }
    .value { font-size: 14px; line-height: 1.5; }
    .meta-grid { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .amount-large { font-size: 32px; font-weight: 700; margin-bottom: 4px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
    th { text-align: left; text-transform: uppercase; font-size: 11px; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 10px 0; }
    td { padding: 16px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; vertical-align: top; }
    .td-right { text-align: right; }
    .total-row { display: flex; justify-content: space-between; width: 250px; margin-left: auto; padding: 6px 0; font-size: 14px; }
    .total-final { border-top: 1px solid #e3e8ee; margin-top: 10px; padding-top: 10px; font-weight: 700; font-size: 16px; }
    .footer { margin-top: 60px; font-size: 12px; color: #8792a2; border-top: 1px solid #e3e8ee; padding-top: 20px; }
  </style>
</head>
<body>
  <div class="invoice-card">
    <div class="header">
      <div class="header-left">
        <h1>Invoice</h1>
        <div class="label" style="margin-top: 12px;">Invoice number</div>
        <div class="value">{{.Invoice.InvoiceNumber}}</div>
      </div>
      <div class="header-right">
        {{if .Invoice.Branding.LogoURL}}
          <img src="{{.Invoice.Branding.LogoURL}}" style="max-height: 40px;" alt="{{.Invoice.Branding.DisplayName}}">
        {{else}}
          {{.Invoice.Branding.DisplayName}}
        {{end}}
      </div>
    </div>

    <div class="meta-grid">
      <div>
        <div class="label">Bill to</div>
        <div class="value">
          <strong>{{.Invoice.CustomerName}}</strong><br>
          {{.Invoice.CustomerEmail}}
        </div>
      </div>
      <div>
        <div class="label">From</div>
        <div class="value">
          <strong>{{.Invoice.Branding.DisplayName}}</strong><br>
          {{if .Invoice.Branding.Address}}{{.Invoice.Branding.Address}}<br>{{end}}
          {{.Invoice.Branding.SenderEmail}}
          {{if .Invoice.Branding.TaxID}}<br>Tax ID: {{.Invoice.Branding.TaxID}}{{end}}
        </div>
      </div>
      <div>
        <div class="label">Date issued</div>
        <div class="value">{{formatDate .Invoice.IssuedAt}}</div>
        <div class="label" style="margin-top: 16px;">Date due</div>
        <div class="value">{{formatDate .Invoice.DueAt}}</div>
      </div>
    </div>

    <div class="amount-large">{{.Total}}</div>
    <div class="value" style="color: #697386; margin-bottom: 40px;">{{.Invoice.Status}}</div>

    <table>
      <thead>
        <tr>
          <th>Description</th>
          <th class="td-right">Qty</th>
          <th class="td-right">Unit price</th>
          <th class="td-right">Amount</th>
        </tr>
      </thead>
      <tbody>
        {{range .Items}}
        <tr>
          <td>{{.Description}}</td>
          <td class="td-right">{{.Quantity}}</td>
          <td class="td-right">{{.UnitPrice}}</td>
          <td class="td-right">{{.Amount}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="total-row"><span>Subtotal</span><span>{{.Total}}</span></div>
    <div class="total-row total-final"><span>Total</span><span>{{.Total}}</span></div>

    <div class="footer">
      {{.Invoice.Description}}
      {{if .Invoice.Branding.Website}}<br>{{.Invoice.Branding.Website}}{{end}}
    </div>
  </div>
</body>
</html>
`

type itemView struct {
	Description string
	Quantity    int64
	UnitPrice   string
	Amount      string
}

type invoiceView struct {
	Invoice    *invoicedomain.Invoice
	ThemeColor template.CSS
	Items      []itemView
	Total      string
}

// HTMLRenderer renders an invoice into a self-contained HTML document. Output
// depends only on the invoice row, so re-rendering yields identical bytes.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	tmpl := template.Must(template.New("invoice").Funcs(template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.UTC().Format("January 2, 2006")
		},
	}).Parse(invoiceHTMLTemplate))
	return &HTMLRenderer{tmpl: tmpl}
}

func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r *HTMLRenderer) Render(ctx context.Context, invoice *invoicedomain.Invoice) ([]byte, error) {
	_ = ctx
	if invoice == nil {
		return nil, invoicedomain.ErrRender
	}

	total, err := format.FormatMoney(invoice.Amount, invoice.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
	}

	lines, err := invoice.LineItems()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
	}
	items := make([]itemView, 0, len(lines))
	for _, line := range lines {
		unit, err := format.FormatMoney(line.UnitAmount, invoice.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
		}
		amount, err := format.FormatMoney(line.Amount, invoice.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
		}
		items = append(items, itemView{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			Amount:      amount,
		})
	}

	theme := invoice.Branding.ThemeColor
	if theme == "" {
		theme = "#1a1f36"
	}

	var buf bytes.Buffer
	view := invoiceView{
		Invoice:    invoice,
		ThemeColor: template.CSS(theme),
		Items:      items,
		Total:      total,
	}
	if err := r.tmpl.Execute(&buf, view); err != nil {
		// Nothing partial leaves this function; the buffer is dropped.
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
	}
	return buf.Bytes(), nil
}
