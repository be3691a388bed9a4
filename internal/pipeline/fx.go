package pipeline

import (
	"context"

	"github.com/smallbiznis/invoiceflow/internal/pipeline/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		service.NewService,
		func(s *service.Service) service.Pipeline { return s },
	),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, s *service.Service, log *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting invoice pipeline workers")
			s.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return s.Stop(ctx)
		},
	})
}
