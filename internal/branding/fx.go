package branding

import (
	"github.com/smallbiznis/invoiceflow/internal/branding/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("branding.resolver",
	fx.Provide(repository.Provide),
)
