package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/config"
)

type DocumentType string

const (
	DocumentOrderSlip       DocumentType = config.DocumentOrderSlip
	DocumentDeliveryReceipt DocumentType = config.DocumentDeliveryReceipt
	DocumentPlacement       DocumentType = config.DocumentPlacement
)

// DefaultTables maps each document type to the table that owns its control numbers.
var DefaultTables = map[DocumentType]string{
	DocumentOrderSlip:       "order_slips",
	DocumentDeliveryReceipt: "delivery_receipts",
	DocumentPlacement:       "placements",
}

// Issued is a control number reserved for one document.
type Issued struct {
	CompanyID    snowflake.ID
	DocumentType DocumentType
	Period       string
	Seq          int64
	Number       string
	IssuedAt     time.Time
	Attempt      int
}

// Control is embedded by every numbered document. The two unique indexes
// arbitrate between concurrent issuers.
type Control struct {
	CompanyID     snowflake.ID `gorm:"not null;uniqueIndex:,composite:control_number;uniqueIndex:,composite:control_seq" json:"company_id"`
	ControlNumber string       `gorm:"type:text;not null;uniqueIndex:,composite:control_number" json:"control_number"`
	ControlPeriod string       `gorm:"type:text;not null;default:'';uniqueIndex:,composite:control_seq" json:"control_period"`
	ControlSeq    int64        `gorm:"not null;uniqueIndex:,composite:control_seq" json:"control_seq"`
}

// Apply copies the issued number onto a document.
func (i Issued) Apply(c *Control) {
	c.CompanyID = i.CompanyID
	c.ControlNumber = i.Number
	c.ControlPeriod = i.Period
	c.ControlSeq = i.Seq
}
