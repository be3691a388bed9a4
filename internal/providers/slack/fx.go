package slack

import (
	"github.com/smallbiznis/invoiceflow/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.AlertWebhookURL == "" {
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.AlertWebhookURL)
}
