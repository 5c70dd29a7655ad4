package events

import (
	"context"
	"time"

	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const relayLockKey = "fuelledger:outbox:relay"

type RelayParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Publisher Publisher
	Locker    *Locker     `optional:"true"`
	Clock     clock.Clock `optional:"true"`
}

// Relay forwards unpublished outbox events to the publisher. Delivery is at
// least once; subscribers dedupe on the message ID.
type Relay struct {
	db        *gorm.DB
	log       *zap.Logger
	publisher Publisher
	locker    *Locker
	clock     clock.Clock
	channel   string
	batchSize int
	interval  time.Duration
}

func NewRelay(p RelayParams) *Relay {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	batch := p.Config.RelayBatchSize
	if batch <= 0 {
		batch = 100
	}
	interval := p.Config.RelayInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	channel := p.Config.RelayChannel
	if channel == "" {
		channel = "fuelledger.events"
	}
	return &Relay{
		db:        p.DB,
		log:       p.Log.Named("events.relay"),
		publisher: p.Publisher,
		locker:    p.Locker,
		clock:     clk,
		channel:   channel,
		batchSize: batch,
		interval:  interval,
	}
}

// RelayOnce publishes one batch and returns how many events were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if r.locker != nil {
		token, ok, err := r.locker.TryLock(ctx, relayLockKey, 2*r.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), relayLockKey, token); err != nil {
				r.log.Warn("release relay lock", zap.Error(err))
			}
		}()
	}

	var pending []OutboxEvent
	if err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at asc, id asc").
		Limit(r.batchSize).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	delivered := 0
	for _, evt := range pending {
		msg := Message{
			ID:            evt.ID.String(),
			CompanyID:     evt.CompanyID.String(),
			Type:          evt.EventType,
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID.String(),
			Payload:       evt.Payload,
			OccurredAt:    evt.CreatedAt,
		}
		if err := r.publisher.Publish(ctx, r.channel, msg); err != nil {
			r.log.Warn("publish outbox event",
				zap.String("event_id", msg.ID),
				zap.String("event_type", msg.Type),
				zap.Error(err),
			)
			if updateErr := r.db.WithContext(ctx).
				Model(&OutboxEvent{}).
				Where("id = ?", evt.ID).
				Updates(map[string]any{
					"attempts":   gorm.Expr("attempts + 1"),
					"last_error": err.Error(),
				}).Error; updateErr != nil {
				return delivered, updateErr
			}
			continue
		}

		now := r.clock.Now()
		if err := r.db.WithContext(ctx).
			Model(&OutboxEvent{}).
			Where("id = ?", evt.ID).
			Updates(map[string]any{
				"published_at": now,
				"attempts":     gorm.Expr("attempts + 1"),
				"last_error":   "",
			}).Error; err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// Run relays on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("outbox relay failed", zap.Error(err))
			}
		}
	}
}
