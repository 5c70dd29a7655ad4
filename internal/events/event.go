package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventReceiptCreated        = "receipt.created"
	EventReceiptStatusChanged  = "receipt.status_changed"
	EventReceiptPosted         = "receipt.posted"
	EventReceiptCanceled       = "receipt.canceled"
	EventReceiptVoided         = "receipt.voided"
	EventReceiptDeleted        = "receipt.deleted"
	EventSlipCreated           = "slip.created"
	EventSlipStatusChanged     = "slip.status_changed"
	EventSlipCompleted         = "slip.completed"
	EventRecalculationApplied  = "recalculation.applied"
	EventPlacementCreated      = "placement.created"
	EventPlacementPosted       = "placement.posted"
	EventPlacementLocked       = "placement.locked"
	EventPlacementWithdrawn    = "placement.withdrawn"
	EventPlacementRolledOver   = "placement.rolled_over"
	EventPlacementSwapped      = "placement.swapped"
	EventPlacementTermsUpdated = "placement.terms_updated"
)

// Event is a domain event written to the outbox in the same transaction as
// the state change it describes.
type Event struct {
	CompanyID     snowflake.ID
	Type          string
	AggregateType string
	AggregateID   snowflake.ID
	Payload       map[string]any
	DedupeKey     string
}

// OutboxEvent is the persisted form relayed to subscribers.
type OutboxEvent struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	CompanyID     snowflake.ID      `gorm:"not null;index" json:"company_id"`
	EventType     string            `gorm:"type:text;not null" json:"event_type"`
	AggregateType string            `gorm:"type:text;not null" json:"aggregate_type"`
	AggregateID   snowflake.ID      `gorm:"not null;index" json:"aggregate_id"`
	Payload       datatypes.JSONMap `gorm:"not null" json:"payload"`
	DedupeKey     string            `gorm:"type:text;not null;uniqueIndex" json:"dedupe_key"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	LastError     string            `gorm:"type:text" json:"last_error,omitempty"`
	PublishedAt   *time.Time        `gorm:"index" json:"published_at,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
