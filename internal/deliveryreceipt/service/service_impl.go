package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	"github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	"github.com/smallbiznis/fuelledger/internal/events"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"github.com/smallbiznis/fuelledger/pkg/db"
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
	Slips      orderslipdomain.Repository
	Sequence   sequencedomain.Service
	Volume     volumedomain.Service
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
	slips      orderslipdomain.Repository
	sequence   sequencedomain.Service
	volume     volumedomain.Service
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
		log:        p.Log.Named("deliveryreceipt.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		slips:      p.Slips,
		sequence:   p.Sequence,
		volume:     p.Volume,
		ledger:     p.Ledger,
		outbox:     p.Outbox,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.DeliveryReceipt, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.DeliveryReceipt{}, domain.ErrInvalidCompany
	}
	if req.OrderSlipID == 0 {
		return domain.DeliveryReceipt{}, domain.ErrInvalidOrderSlip
	}
	if !req.Volume.IsPositive() {
		return domain.DeliveryReceipt{}, domain.ErrInvalidVolume
	}
	manual := strings.TrimSpace(req.ManualNumber)

	var receipt domain.DeliveryReceipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slip, err := s.slips.FindByIDForUpdate(ctx, tx, companyID, req.OrderSlipID)
		if err != nil {
			return err
		}
		if slip == nil {
			return domain.ErrInvalidOrderSlip
		}
		if !slip.Status.AcceptsReceipts() {
			return domain.ErrSlipNotAccepting
		}
		if manual != "" {
			exists, err := s.repo.ManualNumberExists(ctx, tx, companyID, manual)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrDuplicateManualNumber
			}
		}
		if err := s.volume.Reserve(ctx, tx, slip, req.Volume); err != nil {
			return err
		}

		summary, err := s.repo.Summarize(ctx, tx, companyID, slip.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		receipt = domain.DeliveryReceipt{
			ID:          s.genID.Generate(),
			OrderSlipID: slip.ID,
			Allocation:  volumedomain.Allocation{Volume: req.Volume},
			Status:      domain.StatusPendingDelivery,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if manual != "" {
			receipt.ManualNumber = &manual
		}
		if slip.ReceiptCap > 0 && summary.Linked >= slip.ReceiptCap {
			receipt.RequiresApproval = true
			receipt.Status = domain.StatusForApprovalOfOM
		}

		_, err = s.sequence.Issue(ctx, tx, companyID, sequencedomain.DocumentDeliveryReceipt, now, func(tx *gorm.DB, issued sequencedomain.Issued) error {
			issued.Apply(&receipt.Control)
			if err := s.insert(ctx, tx, &receipt, manual); err != nil {
				return err
			}
			return s.outbox.PublishTx(ctx, tx, events.Event{
				CompanyID:     companyID,
				Type:          events.EventReceiptCreated,
				AggregateType: "delivery_receipt",
				AggregateID:   receipt.ID,
				DedupeKey:     "receipt.created:" + receipt.ID.String(),
				Payload: map[string]any{
					"control_number":    receipt.ControlNumber,
					"order_slip_id":     slip.ID.String(),
					"volume":            receipt.Volume.String(),
					"requires_approval": receipt.RequiresApproval,
				},
			})
		})
		return err
	})
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	return receipt, nil
}

// insert writes the receipt under its own savepoint. A unique violation there
// is either a control number race, which the sequence retries, or a manual
// number committed by a receipt on another slip after the pre-check, which is final.
func (s *Service) insert(ctx context.Context, tx *gorm.DB, receipt *domain.DeliveryReceipt, manual string) error {
	err := tx.Transaction(func(sp *gorm.DB) error {
		return s.repo.Insert(ctx, sp, receipt)
	})
	if err == nil || manual == "" || !db.IsDuplicateKeyErr(err) {
		return err
	}
	exists, checkErr := s.repo.ManualNumberExists(ctx, tx, receipt.CompanyID, manual)
	if checkErr != nil {
		return errors.Join(err, checkErr)
	}
	if exists {
		return domain.ErrDuplicateManualNumber
	}
	return err
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.DeliveryReceipt, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.DeliveryReceipt{}, domain.ErrInvalidCompany
	}
	receipt, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	if receipt == nil {
		return domain.DeliveryReceipt{}, domain.ErrNotFound
	}
	return *receipt, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.DeliveryReceipt, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidCompany
	}
	items, err := s.repo.List(ctx, s.db, companyID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeliveryReceipt, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, req domain.TransitionRequest) (domain.DeliveryReceipt, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.DeliveryReceipt{}, domain.ErrInvalidCompany
	}

	var (
		updated domain.DeliveryReceipt
		from    domain.Status
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, slip, err := s.lock(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		from = receipt.Status
		if _, err := domain.Machine.Resolve(from, req.Target); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		switch req.Target {
		case domain.StatusForInvoicing:
			delivered := now
			if req.DeliveredAt != nil && !req.DeliveredAt.IsZero() {
				delivered = req.DeliveredAt.UTC()
			}
			receipt.DeliveredAt = &delivered
		case domain.StatusInvoiced:
			if err := s.post(ctx, tx, receipt, slip, now); err != nil {
				return err
			}
		case domain.StatusCanceled:
			if _, err := s.volume.Release(ctx, tx, slip, receipt.ID, &receipt.Allocation); err != nil {
				return err
			}
		case domain.StatusVoided:
			if _, err := s.ledger.ReverseReceipt(ctx, tx, companyID, receipt.ID, now); err != nil {
				return err
			}
			if _, err := s.volume.Release(ctx, tx, slip, receipt.ID, &receipt.Allocation); err != nil {
				return err
			}
		}

		receipt.Status = req.Target
		receipt.StatusReason = strings.TrimSpace(req.Reason)
		receipt.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, tx, receipt); err != nil {
			return err
		}
		if err := s.publishTransition(ctx, tx, receipt, from); err != nil {
			return err
		}
		updated = *receipt
		return nil
	})
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}

	s.obsMetrics.IncStateTransition("delivery_receipt", string(from), string(updated.Status))
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidCompany
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, slip, err := s.lock(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		if receipt.Status == domain.StatusInvoiced || receipt.Status == domain.StatusVoided {
			return domain.ErrReceiptPosted
		}
		if _, err := s.volume.Release(ctx, tx, slip, receipt.ID, &receipt.Allocation); err != nil {
			return err
		}
		if err := s.repo.SoftDelete(ctx, tx, receipt); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			CompanyID:     companyID,
			Type:          events.EventReceiptDeleted,
			AggregateType: "delivery_receipt",
			AggregateID:   receipt.ID,
			DedupeKey:     "receipt.deleted:" + receipt.ID.String(),
			Payload: map[string]any{
				"control_number": receipt.ControlNumber,
				"order_slip_id":  slip.ID.String(),
			},
		})
	})
}

// post freezes the slip terms onto the receipt, deducts its volume and writes
// the original ledger entries. All three commit with the status change.
func (s *Service) post(ctx context.Context, tx *gorm.DB, receipt *domain.DeliveryReceipt, slip *orderslipdomain.OrderSlip, now time.Time) error {
	receipt.PostedUnitPrice = slip.UnitPrice
	receipt.PostedCommissionRate = slip.CommissionRate
	receipt.PostedFreightRate = slip.FreightRate
	receipt.PostedAt = &now

	if _, err := s.volume.Deduct(ctx, tx, slip, receipt.ID, &receipt.Allocation); err != nil {
		return err
	}
	_, err := s.ledger.PostReceipt(ctx, tx, ledgerdomain.ReceiptPosting{
		CompanyID:      receipt.CompanyID,
		ReceiptID:      receipt.ID,
		ControlNumber:  receipt.ControlNumber,
		Volume:         receipt.Volume,
		UnitPrice:      receipt.PostedUnitPrice,
		CommissionRate: receipt.PostedCommissionRate,
		FreightRate:    receipt.PostedFreightRate,
		OccurredAt:     now,
	})
	return err
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, companyID, id snowflake.ID) (*domain.DeliveryReceipt, *orderslipdomain.OrderSlip, error) {
	receipt, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	if receipt == nil {
		return nil, nil, domain.ErrNotFound
	}
	slip, err := s.slips.FindByIDForUpdate(ctx, tx, companyID, receipt.OrderSlipID)
	if err != nil {
		return nil, nil, err
	}
	if slip == nil {
		return nil, nil, domain.ErrInvalidOrderSlip
	}
	return receipt, slip, nil
}

func (s *Service) publishTransition(ctx context.Context, tx *gorm.DB, receipt *domain.DeliveryReceipt, from domain.Status) error {
	key := receipt.ID.String() + ":" + string(receipt.Status)
	if err := s.outbox.PublishTx(ctx, tx, events.Event{
		CompanyID:     receipt.CompanyID,
		Type:          events.EventReceiptStatusChanged,
		AggregateType: "delivery_receipt",
		AggregateID:   receipt.ID,
		DedupeKey:     "receipt.status_changed:" + key,
		Payload: map[string]any{
			"control_number": receipt.ControlNumber,
			"from":           string(from),
			"to":             string(receipt.Status),
		},
	}); err != nil {
		return err
	}

	var eventType string
	switch receipt.Status {
	case domain.StatusInvoiced:
		eventType = events.EventReceiptPosted
	case domain.StatusCanceled:
		eventType = events.EventReceiptCanceled
	case domain.StatusVoided:
		eventType = events.EventReceiptVoided
	default:
		return nil
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		CompanyID:     receipt.CompanyID,
		Type:          eventType,
		AggregateType: "delivery_receipt",
		AggregateID:   receipt.ID,
		DedupeKey:     eventType + ":" + receipt.ID.String(),
		Payload: map[string]any{
			"control_number": receipt.ControlNumber,
			"order_slip_id":  receipt.OrderSlipID.String(),
			"volume":         receipt.Volume.String(),
		},
	})
}
