package events

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fuelledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
)

// RelayModule runs the outbox relay against Redis pub/sub when enabled.
var RelayModule = fx.Module("events.relay",
	fx.Provide(
		NewRedisClient,
		NewLocker,
		fx.Annotate(NewRedisPublisher, fx.As(new(Publisher))),
		NewRelay,
	),
	fx.Invoke(startRelay),
)

func startRelay(lc fx.Lifecycle, cfg config.Config, relay *Relay, client *redis.Client, log *zap.Logger) {
	if !cfg.RelayEnabled {
		log.Info("outbox relay disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				relay.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return client.Close()
		},
	})
}
