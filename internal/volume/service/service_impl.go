package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const receiptsTable = "delivery_receipts"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Slips      orderslipdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	slips      orderslipdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) volumedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("volume.service"),
		slips:      p.Slips,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, slip *orderslipdomain.OrderSlip, volume decimal.Decimal) error {
	if tx == nil {
		return volumedomain.ErrTxRequired
	}
	if slip == nil {
		return volumedomain.ErrSlipNotFound
	}
	if !volume.IsPositive() {
		return volumedomain.ErrInvalidVolume
	}
	balance, err := s.balance(ctx, tx, slip)
	if err != nil {
		return err
	}
	if volume.GreaterThan(balance.Remaining) {
		s.obsMetrics.IncVolumeRejection()
		return &volumedomain.BudgetError{Requested: volume, Remaining: balance.Remaining}
	}
	return nil
}

func (s *Service) Check(ctx context.Context, slipID snowflake.ID, volume decimal.Decimal) (volumedomain.Balance, error) {
	if !volume.IsPositive() {
		return volumedomain.Balance{}, volumedomain.ErrInvalidVolume
	}
	balance, err := s.Balance(ctx, slipID)
	if err != nil {
		return volumedomain.Balance{}, err
	}
	if volume.GreaterThan(balance.Remaining) {
		return balance, &volumedomain.BudgetError{Requested: volume, Remaining: balance.Remaining}
	}
	return balance, nil
}

func (s *Service) Deduct(ctx context.Context, tx *gorm.DB, slip *orderslipdomain.OrderSlip, receiptID snowflake.ID, alloc *volumedomain.Allocation) (bool, error) {
	if tx == nil {
		return false, volumedomain.ErrTxRequired
	}
	if alloc.Released() {
		return false, volumedomain.ErrAlreadyReleased
	}
	if alloc.DeductedAt != nil {
		return false, nil
	}

	now := s.clock.Now().UTC()
	slip.DeliveredVolume = slip.DeliveredVolume.Add(alloc.Volume)
	slip.UpdatedAt = now
	if err := s.slips.UpdateDeliveredVolume(ctx, tx, slip); err != nil {
		return false, err
	}
	if err := s.mark(ctx, tx, slip.CompanyID, receiptID, "deducted_at", now); err != nil {
		return false, err
	}
	alloc.DeductedAt = &now
	return true, nil
}

// Release returns the receipt's volume to the slip. A second release is a no-op.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, slip *orderslipdomain.OrderSlip, receiptID snowflake.ID, alloc *volumedomain.Allocation) (bool, error) {
	if tx == nil {
		return false, volumedomain.ErrTxRequired
	}
	if alloc.Released() {
		return false, nil
	}

	now := s.clock.Now().UTC()
	if alloc.DeductedAt != nil {
		slip.DeliveredVolume = slip.DeliveredVolume.Sub(alloc.Volume)
		slip.UpdatedAt = now
		if err := s.slips.UpdateDeliveredVolume(ctx, tx, slip); err != nil {
			return false, err
		}
	}
	if err := s.mark(ctx, tx, slip.CompanyID, receiptID, "released_at", now); err != nil {
		return false, err
	}
	alloc.ReleasedAt = &now
	return true, nil
}

func (s *Service) Balance(ctx context.Context, slipID snowflake.ID) (volumedomain.Balance, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return volumedomain.Balance{}, volumedomain.ErrInvalidCompany
	}
	slip, err := s.slips.FindByID(ctx, s.db, companyID, slipID)
	if err != nil {
		return volumedomain.Balance{}, err
	}
	if slip == nil {
		return volumedomain.Balance{}, volumedomain.ErrSlipNotFound
	}
	return s.balance(ctx, s.db, slip)
}

func (s *Service) balance(ctx context.Context, db *gorm.DB, slip *orderslipdomain.OrderSlip) (volumedomain.Balance, error) {
	var volumes []decimal.Decimal
	err := db.WithContext(ctx).
		Table(receiptsTable).
		Where("company_id = ? AND order_slip_id = ? AND released_at IS NULL", slip.CompanyID, slip.ID).
		Pluck("volume", &volumes).Error
	if err != nil {
		return volumedomain.Balance{}, err
	}

	reserved := decimal.Zero
	for _, v := range volumes {
		reserved = reserved.Add(v)
	}
	return volumedomain.Balance{
		Ordered:   slip.OrderedVolume,
		Reserved:  reserved,
		Delivered: slip.DeliveredVolume,
		Remaining: slip.OrderedVolume.Sub(reserved),
	}, nil
}

func (s *Service) mark(ctx context.Context, tx *gorm.DB, companyID, receiptID snowflake.ID, column string, at any) error {
	return tx.WithContext(ctx).
		Table(receiptsTable).
		Where("company_id = ? AND id = ?", companyID, receiptID).
		Update(column, at).Error
}
