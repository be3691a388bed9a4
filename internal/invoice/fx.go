package invoice

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceflow/internal/clock"
	"github.com/smallbiznis/invoiceflow/internal/config"
	"github.com/smallbiznis/invoiceflow/internal/invoice/compose"
	"github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/invoice/render"
	"github.com/smallbiznis/invoiceflow/internal/invoice/repository"
	"github.com/smallbiznis/invoiceflow/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewComposer),
	fx.Provide(NewRenderer),
)

func NewComposer(node *snowflake.Node, clk clock.Clock, cfg config.Config) *compose.Composer {
	return compose.New(node, clk, cfg.PaymentTermsDays)
}

// NewRenderer picks the document format. HTML is the default because its
// output is byte-identical across re-renders.
func NewRenderer(cfg config.Config) domain.DocumentRenderer {
	if cfg.DocumentFormat == config.DocumentFormatPDF {
		return pdf.New()
	}
	return render.NewHTMLRenderer()
}
