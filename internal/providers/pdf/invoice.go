package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/invoice/format"
)

// Renderer produces a PDF document for an invoice using maroto. The PDF
// container embeds a library creation timestamp, so for byte-identical
// re-renders use the HTML renderer; this one exists for merchants that want a
// printable attachment.
type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) ContentType() string { return "application/pdf" }

func (r *Renderer) Render(ctx context.Context, invoice *invoicedomain.Invoice) ([]byte, error) {
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

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssuedAt.UTC().Format("2006-01-02"), props.Text{Top: 4}),
			text.New("Date due: "+invoice.DueAt.UTC().Format("2006-01-02"), props.Text{Top: 8}),
			text.New("Payment: "+invoice.PaymentID, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(40,
		col.New(4).Add(
			text.New(invoice.Branding.DisplayName, props.Text{Style: fontstyle.Bold}),
			text.New(invoice.Branding.Address, props.Text{Top: 5}),
			text.New(invoice.Branding.SenderEmail, props.Text{Top: 20}),
		),
		col.New(4).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.CustomerName, props.Text{Top: 5}),
			text.New(invoice.CustomerEmail, props.Text{Top: 9}),
		),
		col.New(4),
	)

	m.AddRow(15,
		text.NewCol(12, total+" due "+invoice.DueAt.UTC().Format("2006-01-02"), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range lines {
		unit, err := format.FormatMoney(item.UnitAmount, invoice.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
		}
		amount, err := format.FormatMoney(item.Amount, invoice.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
		}
		m.AddRow(15,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, unit, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrRender, err)
	}
	return doc.GetBytes(), nil
}
