package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PostReceipt(ctx context.Context, db *gorm.DB, posting ledgerdomain.ReceiptPosting) ([]ledgerdomain.Entry, error) {
	if posting.CompanyID == 0 {
		return nil, ledgerdomain.ErrInvalidCompany
	}
	if posting.ReceiptID == 0 {
		return nil, ledgerdomain.ErrInvalidSource
	}
	reference := strings.TrimSpace(posting.ControlNumber)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	if !posting.Volume.IsPositive() {
		return nil, ledgerdomain.ErrInvalidVolume
	}
	if posting.UnitPrice.IsNegative() {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if posting.OccurredAt.IsZero() {
		return nil, ledgerdomain.ErrInvalidOccurredAt
	}

	base := ledgerdomain.Entry{
		CompanyID:  posting.CompanyID,
		SourceType: ledgerdomain.SourceDeliveryReceipt,
		SourceID:   posting.ReceiptID,
		Reference:  reference,
		EntryType:  ledgerdomain.EntryOriginal,
		Basis:      posting.UnitPrice,
		Volume:     posting.Volume,
		OccurredAt: posting.OccurredAt.UTC(),
	}
	gross := posting.UnitPrice.Mul(posting.Volume)
	key := "receipt:" + posting.ReceiptID.String() + ":original:"

	entries := []ledgerdomain.Entry{
		withAmount(base, ledgerdomain.KindSales, decimal.NewFromInt(1), gross, key+"sales"),
		withAmount(base, ledgerdomain.KindCommission, posting.CommissionRate, gross.Mul(posting.CommissionRate), key+"commission"),
		withAmount(base, ledgerdomain.KindFreight, posting.FreightRate, gross.Mul(posting.FreightRate), key+"freight"),
	}
	return s.insert(ctx, db, ledgerdomain.EntryOriginal, entries)
}

func (s *Service) ReverseReceipt(ctx context.Context, db *gorm.DB, companyID, receiptID snowflake.ID, occurredAt time.Time) ([]ledgerdomain.Entry, error) {
	if companyID == 0 {
		return nil, ledgerdomain.ErrInvalidCompany
	}
	if receiptID == 0 {
		return nil, ledgerdomain.ErrInvalidSource
	}
	if occurredAt.IsZero() {
		return nil, ledgerdomain.ErrInvalidOccurredAt
	}
	conn := s.conn(db)

	var posted []ledgerdomain.Entry
	if err := conn.WithContext(ctx).
		Where("company_id = ? AND source_type = ? AND source_id = ? AND entry_type <> ?",
			companyID, ledgerdomain.SourceDeliveryReceipt, receiptID, ledgerdomain.EntryReversal).
		Order("created_at asc, id asc").
		Find(&posted).Error; err != nil {
		return nil, err
	}

	reversals := make([]ledgerdomain.Entry, 0, len(posted))
	for _, orig := range posted {
		origID := orig.ID
		rev := orig
		rev.EntryType = ledgerdomain.EntryReversal
		rev.Amount = orig.Amount.Neg()
		rev.ReversesID = &origID
		rev.OccurredAt = occurredAt.UTC()
		rev.IdempotencyKey = "reversal:" + origID.String()
		reversals = append(reversals, rev)
	}
	return s.insert(ctx, conn, ledgerdomain.EntryReversal, reversals)
}

func (s *Service) AppendCorrections(ctx context.Context, db *gorm.DB, c ledgerdomain.Correction) ([]ledgerdomain.Entry, error) {
	if c.CompanyID == 0 {
		return nil, ledgerdomain.ErrInvalidCompany
	}
	if c.ReceiptID == 0 {
		return nil, ledgerdomain.ErrInvalidSource
	}
	if c.RevisionID == 0 {
		return nil, ledgerdomain.ErrInvalidRevision
	}
	reference := strings.TrimSpace(c.ControlNumber)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	if !c.Volume.IsPositive() {
		return nil, ledgerdomain.ErrInvalidVolume
	}
	if c.OccurredAt.IsZero() {
		return nil, ledgerdomain.ErrInvalidOccurredAt
	}
	if c.PriceDelta.IsZero() {
		return nil, nil
	}

	revisionID := c.RevisionID
	base := ledgerdomain.Entry{
		CompanyID:  c.CompanyID,
		SourceType: ledgerdomain.SourceDeliveryReceipt,
		SourceID:   c.ReceiptID,
		Reference:  reference,
		EntryType:  ledgerdomain.EntryCorrection,
		Basis:      c.BasePrice,
		PriceDelta: c.PriceDelta,
		Volume:     c.Volume,
		RevisionID: &revisionID,
		OccurredAt: c.OccurredAt.UTC(),
	}
	delta := c.PriceDelta.Mul(c.Volume)
	key := "receipt:" + c.ReceiptID.String() + ":correction:" + revisionID.String() + ":"

	entries := []ledgerdomain.Entry{
		withAmount(base, ledgerdomain.KindSales, decimal.NewFromInt(1), delta, key+"sales"),
		withAmount(base, ledgerdomain.KindCommission, c.CommissionRate, delta.Mul(c.CommissionRate), key+"commission"),
		withAmount(base, ledgerdomain.KindFreight, c.FreightRate, delta.Mul(c.FreightRate), key+"freight"),
	}
	return s.insert(ctx, db, ledgerdomain.EntryCorrection, entries)
}

func (s *Service) PostPlacementDisposition(ctx context.Context, db *gorm.DB, p ledgerdomain.PlacementPosting) ([]ledgerdomain.Entry, error) {
	if p.CompanyID == 0 {
		return nil, ledgerdomain.ErrInvalidCompany
	}
	if p.PlacementID == 0 {
		return nil, ledgerdomain.ErrInvalidSource
	}
	reference := strings.TrimSpace(p.ControlNumber)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	if p.EarnedGross.IsNegative() || p.EWTAmount.IsNegative() || p.TrustFeeAmount.IsNegative() {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if p.OccurredAt.IsZero() {
		return nil, ledgerdomain.ErrInvalidOccurredAt
	}

	base := ledgerdomain.Entry{
		CompanyID:  p.CompanyID,
		SourceType: ledgerdomain.SourcePlacement,
		SourceID:   p.PlacementID,
		Reference:  reference,
		EntryType:  ledgerdomain.EntryOriginal,
		Basis:      p.Principal,
		OccurredAt: p.OccurredAt.UTC(),
	}
	key := "placement:" + p.PlacementID.String() + ":"

	entries := []ledgerdomain.Entry{
		withAmount(base, ledgerdomain.KindInterest, p.InterestRate, p.EarnedGross, key+"interest"),
	}
	if p.EWTAmount.IsPositive() {
		ewt := withAmount(base, ledgerdomain.KindEWT, p.EWTRate, p.EWTAmount.Neg(), key+"ewt")
		ewt.Basis = p.EarnedGross
		entries = append(entries, ewt)
	}
	if p.TrustFeeAmount.IsPositive() {
		fee := withAmount(base, ledgerdomain.KindTrustFee, p.TrustFeeRate, p.TrustFeeAmount.Neg(), key+"trust_fee")
		fee.Basis = p.EarnedGross
		entries = append(entries, fee)
	}
	return s.insert(ctx, db, ledgerdomain.EntryOriginal, entries)
}

func (s *Service) ListBySource(ctx context.Context, companyID snowflake.ID, sourceType ledgerdomain.SourceType, sourceID snowflake.ID) ([]ledgerdomain.Entry, error) {
	if companyID == 0 {
		return nil, ledgerdomain.ErrInvalidCompany
	}
	if sourceID == 0 || strings.TrimSpace(string(sourceType)) == "" {
		return nil, ledgerdomain.ErrInvalidSource
	}
	var entries []ledgerdomain.Entry
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND source_type = ? AND source_id = ?", companyID, sourceType, sourceID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// insert writes each entry, skipping those whose idempotency key already
// exists. Only newly written entries are returned.
func (s *Service) insert(ctx context.Context, db *gorm.DB, entryType ledgerdomain.EntryType, entries []ledgerdomain.Entry) ([]ledgerdomain.Entry, error) {
	conn := s.conn(db)
	now := s.clock.Now().UTC()

	written := make([]ledgerdomain.Entry, 0, len(entries))
	for _, entry := range entries {
		entry.ID = s.genID.Generate()
		entry.CreatedAt = now
		result := conn.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
			Create(&entry)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		written = append(written, entry)
	}

	if len(written) > 0 {
		s.obsMetrics.AddLedgerEntries(string(entryType), len(written))
	}
	return written, nil
}

func (s *Service) conn(db *gorm.DB) *gorm.DB {
	if db == nil {
		return s.db
	}
	return db
}

func withAmount(base ledgerdomain.Entry, kind ledgerdomain.Kind, rate, amount decimal.Decimal, key string) ledgerdomain.Entry {
	base.Kind = kind
	base.Rate = rate
	base.Amount = ledgerdomain.Round2(amount)
	base.IdempotencyKey = key
	return base
}
