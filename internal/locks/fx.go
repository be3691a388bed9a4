package locks

import (
	"github.com/smallbiznis/invoiceflow/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("locks",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns a nil Locker when redis is not configured; the
// pipeline then runs without cross-replica serialization.
func NewFromConfig(cfg config.Config) *Locker {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return NewLocker(client)
}
