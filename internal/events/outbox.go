package events

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidEvent = errors.New("invalid_event")
	ErrTxRequired   = errors.New("outbox_tx_required")
)

type Outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

// NewOutbox stamps events with clk, which also orders the relay. A nil clock
// means wall time.
func NewOutbox(genID *snowflake.Node, clk clock.Clock) *Outbox {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Outbox{genID: genID, clock: clk}
}

// PublishTx records the event inside tx. A repeated dedupe key is ignored.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evt Event) error {
	if o == nil {
		return nil
	}
	if tx == nil {
		return ErrTxRequired
	}
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.CompanyID == 0 || evt.Type == "" {
		return ErrInvalidEvent
	}

	id := o.genID.Generate()
	dedupe := strings.TrimSpace(evt.DedupeKey)
	if dedupe == "" {
		dedupe = evt.Type + ":" + id.String()
	}
	payload := datatypes.JSONMap{}
	for k, v := range evt.Payload {
		payload[k] = v
	}

	row := OutboxEvent{
		ID:            id,
		CompanyID:     evt.CompanyID,
		EventType:     evt.Type,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		Payload:       payload,
		DedupeKey:     dedupe,
		CreatedAt:     o.clock.Now().UTC(),
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&row).Error
}
