package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	"github.com/smallbiznis/fuelledger/internal/events"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/observability/tracing"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	"github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Receipts   receiptdomain.Repository
	Slips      orderslipdomain.Repository
	Ledger     ledgerdomain.Service
	Outbox     *events.Outbox      `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	receipts   receiptdomain.Repository
	slips      orderslipdomain.Repository
	ledger     ledgerdomain.Service
	outbox     *events.Outbox
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recalculation.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		receipts:   p.Receipts,
		slips:      p.Slips,
		ledger:     p.Ledger,
		outbox:     p.Outbox,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RecalculateReceipt(ctx context.Context, receiptID snowflake.ID, updatedPrice decimal.Decimal, reason string) (domain.BatchResult, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.BatchResult{}, domain.ErrInvalidCompany
	}
	if updatedPrice.IsNegative() {
		return domain.BatchResult{}, domain.ErrInvalidPrice
	}

	ctx, span := tracing.Tracer("recalculation").Start(ctx, "recalculation.receipt")
	defer span.End()

	var result domain.BatchResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := s.receipts.FindByIDForUpdate(ctx, tx, companyID, receiptID)
		if err != nil {
			return err
		}
		if receipt == nil {
			return domain.ErrReceiptNotFound
		}
		if receipt.Status != receiptdomain.StatusInvoiced {
			return domain.ErrReceiptNotPosted
		}
		effective, err := s.effectivePrice(ctx, tx, receipt)
		if err != nil {
			return err
		}

		id := receipt.ID
		revision := domain.PriceRevision{
			ID:            s.genID.Generate(),
			CompanyID:     companyID,
			OrderSlipID:   receipt.OrderSlipID,
			ReceiptID:     &id,
			Scope:         domain.ScopeReceipt,
			PreviousPrice: effective,
			UpdatedPrice:  updatedPrice,
			Reason:        strings.TrimSpace(reason),
			CreatedAt:     s.clock.Now().UTC(),
		}
		if err := s.repo.InsertRevision(ctx, tx, &revision); err != nil {
			return err
		}
		item, err := s.applyTx(ctx, tx, revision, receipt)
		if err != nil {
			return err
		}
		result = domain.BatchResult{Revision: revision, Items: []domain.ItemResult{item}}
		return nil
	})
	if err != nil {
		return domain.BatchResult{}, err
	}
	s.obsMetrics.IncRecalculationItem(string(result.Items[0].Outcome))
	return result, nil
}

func (s *Service) RecalculateOrderSlip(ctx context.Context, slipID snowflake.ID, updatedPrice decimal.Decimal, reason string) (domain.BatchResult, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.BatchResult{}, domain.ErrInvalidCompany
	}
	if updatedPrice.IsNegative() {
		return domain.BatchResult{}, domain.ErrInvalidPrice
	}

	ctx, span := tracing.Tracer("recalculation").Start(ctx, "recalculation.order_slip")
	defer span.End()

	var revision domain.PriceRevision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slip, err := s.slips.FindByIDForUpdate(ctx, tx, companyID, slipID)
		if err != nil {
			return err
		}
		if slip == nil {
			return domain.ErrSlipNotFound
		}
		now := s.clock.Now().UTC()
		revision = domain.PriceRevision{
			ID:            s.genID.Generate(),
			CompanyID:     companyID,
			OrderSlipID:   slip.ID,
			Scope:         domain.ScopeOrderSlip,
			PreviousPrice: slip.UnitPrice,
			UpdatedPrice:  updatedPrice,
			Reason:        strings.TrimSpace(reason),
			CreatedAt:     now,
		}
		if err := s.repo.InsertRevision(ctx, tx, &revision); err != nil {
			return err
		}
		slip.UnitPrice = updatedPrice
		slip.UpdatedAt = now
		return s.slips.UpdateUnitPrice(ctx, tx, slip)
	})
	if err != nil {
		return domain.BatchResult{}, err
	}

	receipts, err := s.receipts.ListInvoicedBySlip(ctx, s.db, companyID, slipID)
	if err != nil {
		return domain.BatchResult{Revision: revision}, err
	}
	result := s.applyAll(ctx, revision, receipts)
	span.SetAttributes(
		attribute.Int("receipts", len(result.Items)),
		attribute.Int("failed", len(result.Failed())),
	)
	return result, nil
}

func (s *Service) Pending(ctx context.Context, revisionID snowflake.ID) ([]receiptdomain.DeliveryReceipt, error) {
	revision, err := s.revision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	pending, err := s.pending(ctx, revision)
	if err != nil {
		return nil, err
	}
	out := make([]receiptdomain.DeliveryReceipt, 0, len(pending))
	for _, receipt := range pending {
		out = append(out, *receipt)
	}
	return out, nil
}

func (s *Service) Retry(ctx context.Context, revisionID snowflake.ID) (domain.BatchResult, error) {
	revision, err := s.revision(ctx, revisionID)
	if err != nil {
		return domain.BatchResult{}, err
	}
	pending, err := s.pending(ctx, revision)
	if err != nil {
		return domain.BatchResult{}, err
	}
	return s.applyAll(ctx, revision, pending), nil
}

func (s *Service) ListAdjustments(ctx context.Context, receiptID snowflake.ID) ([]domain.ReceiptAdjustment, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidCompany
	}
	items, err := s.repo.ListAdjustments(ctx, s.db, companyID, receiptID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReceiptAdjustment, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) revision(ctx context.Context, revisionID snowflake.ID) (domain.PriceRevision, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.PriceRevision{}, domain.ErrInvalidCompany
	}
	revision, err := s.repo.FindRevision(ctx, s.db, companyID, revisionID)
	if err != nil {
		return domain.PriceRevision{}, err
	}
	if revision == nil {
		return domain.PriceRevision{}, domain.ErrRevisionNotFound
	}
	return *revision, nil
}

// pending lists the invoiced receipts covered by the revision that lack an adjustment.
func (s *Service) pending(ctx context.Context, revision domain.PriceRevision) ([]*receiptdomain.DeliveryReceipt, error) {
	var candidates []*receiptdomain.DeliveryReceipt
	if revision.Scope == domain.ScopeReceipt && revision.ReceiptID != nil {
		receipt, err := s.receipts.FindByID(ctx, s.db, revision.CompanyID, *revision.ReceiptID)
		if err != nil {
			return nil, err
		}
		if receipt != nil && receipt.Status == receiptdomain.StatusInvoiced {
			candidates = append(candidates, receipt)
		}
	} else {
		var err error
		candidates, err = s.receipts.ListInvoicedBySlip(ctx, s.db, revision.CompanyID, revision.OrderSlipID)
		if err != nil {
			return nil, err
		}
	}

	adjusted, err := s.repo.AdjustedReceiptIDs(ctx, s.db, revision.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*receiptdomain.DeliveryReceipt, 0, len(candidates))
	for _, receipt := range candidates {
		if !adjusted[receipt.ID] {
			out = append(out, receipt)
		}
	}
	return out, nil
}

func (s *Service) applyAll(ctx context.Context, revision domain.PriceRevision, receipts []*receiptdomain.DeliveryReceipt) domain.BatchResult {
	result := domain.BatchResult{Revision: revision, Items: make([]domain.ItemResult, 0, len(receipts))}
	for _, receipt := range receipts {
		item := s.applyOne(ctx, revision, receipt)
		s.obsMetrics.IncRecalculationItem(string(item.Outcome))
		result.Items = append(result.Items, item)
	}
	return result
}

// applyOne corrects a single receipt in its own transaction.
func (s *Service) applyOne(ctx context.Context, revision domain.PriceRevision, receipt *receiptdomain.DeliveryReceipt) domain.ItemResult {
	var item domain.ItemResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.receipts.FindByIDForUpdate(ctx, tx, revision.CompanyID, receipt.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			item = domain.ItemResult{ReceiptID: receipt.ID, ControlNumber: receipt.ControlNumber, Outcome: domain.OutcomeSkipped}
			return nil
		}
		item, err = s.applyTx(ctx, tx, revision, locked)
		return err
	})
	if err != nil {
		s.log.Debug("receipt recalculation failed",
			zap.String("revision_id", revision.ID.String()),
			zap.String("control_number", receipt.ControlNumber),
			zap.Error(err),
		)
		return domain.ItemResult{
			ReceiptID:     receipt.ID,
			ControlNumber: receipt.ControlNumber,
			Outcome:       domain.OutcomeFailed,
			Err:           err,
		}
	}
	return item
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, revision domain.PriceRevision, receipt *receiptdomain.DeliveryReceipt) (domain.ItemResult, error) {
	item := domain.ItemResult{ReceiptID: receipt.ID, ControlNumber: receipt.ControlNumber}

	existing, err := s.repo.FindAdjustment(ctx, tx, revision.ID, receipt.ID)
	if err != nil {
		return item, err
	}
	if existing != nil || receipt.Status != receiptdomain.StatusInvoiced {
		item.Outcome = domain.OutcomeSkipped
		item.Adjustment = existing
		return item, nil
	}

	latest, err := s.repo.LatestAdjustment(ctx, tx, receipt.CompanyID, receipt.ID)
	if err != nil {
		return item, err
	}
	effective := receipt.PostedUnitPrice
	if latest != nil {
		if latest.RevisionID > revision.ID {
			return s.supersede(ctx, tx, revision, receipt, latest)
		}
		effective = latest.UpdatedPrice
	}
	delta := domain.ComputeDelta(effective, revision.UpdatedPrice, receipt.Volume, receipt.PostedCommissionRate, receipt.PostedFreightRate)
	now := s.clock.Now().UTC()

	if !delta.IsZero() {
		if _, err := s.ledger.AppendCorrections(ctx, tx, ledgerdomain.Correction{
			CompanyID:      receipt.CompanyID,
			ReceiptID:      receipt.ID,
			ControlNumber:  receipt.ControlNumber,
			RevisionID:     revision.ID,
			Volume:         receipt.Volume,
			BasePrice:      effective,
			PriceDelta:     delta.PriceDelta,
			CommissionRate: receipt.PostedCommissionRate,
			FreightRate:    receipt.PostedFreightRate,
			OccurredAt:     now,
		}); err != nil {
			return item, err
		}
	}

	adjustment := domain.ReceiptAdjustment{
		ID:              s.genID.Generate(),
		CompanyID:       receipt.CompanyID,
		RevisionID:      revision.ID,
		ReceiptID:       receipt.ID,
		ControlNumber:   receipt.ControlNumber,
		EffectivePrice:  effective,
		UpdatedPrice:    revision.UpdatedPrice,
		PriceDelta:      delta.PriceDelta,
		Volume:          receipt.Volume,
		SalesDelta:      delta.Sales,
		CommissionDelta: delta.Commission,
		FreightDelta:    delta.Freight,
		CreatedAt:       now,
	}
	if err := s.repo.InsertAdjustment(ctx, tx, &adjustment); err != nil {
		return item, err
	}

	item.Adjustment = &adjustment
	if delta.IsZero() {
		item.Outcome = domain.OutcomeUnchanged
		return item, nil
	}
	item.Outcome = domain.OutcomeApplied
	err = s.outbox.PublishTx(ctx, tx, events.Event{
		CompanyID:     receipt.CompanyID,
		Type:          events.EventRecalculationApplied,
		AggregateType: "delivery_receipt",
		AggregateID:   receipt.ID,
		DedupeKey:     "recalculation.applied:" + revision.ID.String() + ":" + receipt.ID.String(),
		Payload: map[string]any{
			"control_number":   receipt.ControlNumber,
			"revision_id":      revision.ID.String(),
			"price_delta":      delta.PriceDelta.String(),
			"commission_delta": delta.Commission.String(),
			"freight_delta":    delta.Freight.String(),
		},
	})
	return item, err
}

// supersede records an older revision whose retry arrived after a newer one
// corrected the receipt. Posting its delta would roll the price back.
func (s *Service) supersede(ctx context.Context, tx *gorm.DB, revision domain.PriceRevision, receipt *receiptdomain.DeliveryReceipt, newer *domain.ReceiptAdjustment) (domain.ItemResult, error) {
	newerID := newer.RevisionID
	adjustment := domain.ReceiptAdjustment{
		ID:              s.genID.Generate(),
		CompanyID:       receipt.CompanyID,
		RevisionID:      revision.ID,
		ReceiptID:       receipt.ID,
		ControlNumber:   receipt.ControlNumber,
		EffectivePrice:  newer.UpdatedPrice,
		UpdatedPrice:    newer.UpdatedPrice,
		PriceDelta:      decimal.Zero,
		Volume:          receipt.Volume,
		SalesDelta:      decimal.Zero,
		CommissionDelta: decimal.Zero,
		FreightDelta:    decimal.Zero,
		SupersededBy:    &newerID,
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.repo.InsertAdjustment(ctx, tx, &adjustment); err != nil {
		return domain.ItemResult{ReceiptID: receipt.ID, ControlNumber: receipt.ControlNumber}, err
	}
	s.log.Info("price revision superseded",
		zap.String("revision_id", revision.ID.String()),
		zap.String("superseded_by", newerID.String()),
		zap.String("control_number", receipt.ControlNumber),
	)
	return domain.ItemResult{
		ReceiptID:     receipt.ID,
		ControlNumber: receipt.ControlNumber,
		Outcome:       domain.OutcomeSuperseded,
		Adjustment:    &adjustment,
	}, nil
}

// effectivePrice is the posted price moved by the newest revision applied so far.
func (s *Service) effectivePrice(ctx context.Context, tx *gorm.DB, receipt *receiptdomain.DeliveryReceipt) (decimal.Decimal, error) {
	latest, err := s.repo.LatestAdjustment(ctx, tx, receipt.CompanyID, receipt.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return receipt.PostedUnitPrice, nil
	}
	return latest.UpdatedPrice, nil
}
