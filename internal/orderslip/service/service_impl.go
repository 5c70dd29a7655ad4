package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	"github.com/smallbiznis/fuelledger/internal/events"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
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
	Receipts   domain.ReceiptCounter
	Sequence   sequencedomain.Service
	Outbox     *events.Outbox      `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	receipts   domain.ReceiptCounter
	sequence   sequencedomain.Service
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
		log:        p.Log.Named("orderslip.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		receipts:   p.Receipts,
		sequence:   p.Sequence,
		outbox:     p.Outbox,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.OrderSlip, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.OrderSlip{}, domain.ErrInvalidCompany
	}
	if err := validateCreate(&req); err != nil {
		return domain.OrderSlip{}, err
	}

	now := s.clock.Now().UTC()
	slip := domain.OrderSlip{
		ID:              s.genID.Generate(),
		CustomerID:      req.CustomerID,
		ProductCode:     req.ProductCode,
		OrderedVolume:   req.OrderedVolume,
		DeliveredVolume: decimal.Zero,
		UnitPrice:       req.UnitPrice,
		CommissionRate:  req.CommissionRate,
		FreightRate:     req.FreightRate,
		Status:          domain.StatusCreated,
		ReceiptCap:      req.ReceiptCap,
		ExpiresAt:       req.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.sequence.Issue(ctx, s.db, companyID, sequencedomain.DocumentOrderSlip, now, func(tx *gorm.DB, issued sequencedomain.Issued) error {
		issued.Apply(&slip.Control)
		if err := s.repo.Insert(ctx, tx, &slip); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			CompanyID:     companyID,
			Type:          events.EventSlipCreated,
			AggregateType: "order_slip",
			AggregateID:   slip.ID,
			DedupeKey:     "slip.created:" + slip.ID.String(),
			Payload: map[string]any{
				"control_number": slip.ControlNumber,
				"customer_id":    slip.CustomerID.String(),
				"ordered_volume": slip.OrderedVolume.String(),
			},
		})
	})
	if err != nil {
		return domain.OrderSlip{}, err
	}
	return slip, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.OrderSlip, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.OrderSlip{}, domain.ErrInvalidCompany
	}
	slip, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.OrderSlip{}, err
	}
	if slip == nil {
		return domain.OrderSlip{}, domain.ErrNotFound
	}
	return *slip, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.OrderSlip, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidCompany
	}
	items, err := s.repo.List(ctx, s.db, companyID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderSlip, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, req domain.TransitionRequest) (domain.OrderSlip, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.OrderSlip{}, domain.ErrInvalidCompany
	}

	var (
		updated domain.OrderSlip
		from    domain.Status
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slip, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		if slip == nil {
			return domain.ErrNotFound
		}

		from = slip.Status
		if _, err := domain.Machine.Resolve(from, req.Target); err != nil {
			return err
		}
		if err := checkAppointment(req); err != nil {
			return err
		}
		summary, err := s.receipts.Summarize(ctx, tx, companyID, slip.ID)
		if err != nil {
			return err
		}
		if err := s.checkReceipts(slip, req.Target, summary); err != nil {
			return err
		}

		switch req.Target {
		case domain.StatusSupplierAppointed:
			slip.SupplierID = req.SupplierID
		case domain.StatusHaulerAppointed:
			slip.HaulerID = req.HaulerID
		}
		slip.Status = req.Target
		slip.StatusReason = strings.TrimSpace(req.Reason)
		slip.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.UpdateStatus(ctx, tx, slip); err != nil {
			return err
		}

		if err := s.publishTransition(ctx, tx, slip, from); err != nil {
			return err
		}
		updated = *slip
		return nil
	})
	if err != nil {
		return domain.OrderSlip{}, err
	}

	s.obsMetrics.IncStateTransition("order_slip", string(from), string(updated.Status))
	return updated, nil
}

func (s *Service) AvailableTransitions(ctx context.Context, id snowflake.ID) ([]domain.Status, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidCompany
	}
	slip, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return nil, err
	}
	if slip == nil {
		return nil, domain.ErrNotFound
	}
	summary, err := s.receipts.Summarize(ctx, s.db, companyID, slip.ID)
	if err != nil {
		return nil, err
	}

	out := []domain.Status{}
	for _, target := range domain.Machine.Targets(slip.Status) {
		if s.checkReceipts(slip, target, summary) == nil {
			out = append(out, target)
		}
	}
	return out, nil
}

func (s *Service) publishTransition(ctx context.Context, tx *gorm.DB, slip *domain.OrderSlip, from domain.Status) error {
	payload := map[string]any{
		"control_number": slip.ControlNumber,
		"from":           string(from),
		"to":             string(slip.Status),
	}
	if err := s.outbox.PublishTx(ctx, tx, events.Event{
		CompanyID:     slip.CompanyID,
		Type:          events.EventSlipStatusChanged,
		AggregateType: "order_slip",
		AggregateID:   slip.ID,
		DedupeKey:     "slip.status_changed:" + slip.ID.String() + ":" + string(slip.Status),
		Payload:       payload,
	}); err != nil {
		return err
	}
	if slip.Status != domain.StatusCompleted {
		return nil
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		CompanyID:     slip.CompanyID,
		Type:          events.EventSlipCompleted,
		AggregateType: "order_slip",
		AggregateID:   slip.ID,
		DedupeKey:     "slip.completed:" + slip.ID.String(),
		Payload: map[string]any{
			"control_number":   slip.ControlNumber,
			"delivered_volume": slip.DeliveredVolume.String(),
		},
	})
}

// checkReceipts evaluates the guards that depend on linked receipts or time.
func (s *Service) checkReceipts(slip *domain.OrderSlip, target domain.Status, summary domain.ReceiptSummary) error {
	switch target {
	case domain.StatusForDR:
		// invoiced receipts can still be voided, so they count as live
		if summary.Open+summary.Posted < 1 {
			return domain.ErrNoOpenReceipts
		}
	case domain.StatusCompleted:
		if summary.Linked < 1 || summary.Open > 0 || summary.Posted < 1 {
			return domain.ErrReceiptsIncomplete
		}
	case domain.StatusExpired:
		if slip.ExpiresAt == nil || s.clock.Now().Before(*slip.ExpiresAt) {
			return domain.ErrNotExpired
		}
	case domain.StatusClosed:
		if summary.Open > 0 {
			return domain.ErrOpenReceiptsRemain
		}
	}
	return nil
}

func checkAppointment(req domain.TransitionRequest) error {
	switch req.Target {
	case domain.StatusSupplierAppointed:
		if req.SupplierID == nil || *req.SupplierID == 0 {
			return domain.ErrSupplierRequired
		}
	case domain.StatusHaulerAppointed:
		if req.HaulerID == nil || *req.HaulerID == 0 {
			return domain.ErrHaulerRequired
		}
	}
	return nil
}

func validateCreate(req *domain.CreateRequest) error {
	req.ProductCode = strings.TrimSpace(req.ProductCode)
	switch {
	case req.CustomerID == 0:
		return domain.ErrInvalidCustomer
	case req.ProductCode == "":
		return domain.ErrInvalidProduct
	case !req.OrderedVolume.IsPositive():
		return domain.ErrInvalidVolume
	case req.UnitPrice.IsNegative():
		return domain.ErrInvalidPrice
	case req.CommissionRate.IsNegative(), req.FreightRate.IsNegative():
		return domain.ErrInvalidRate
	case req.ReceiptCap < 0:
		return domain.ErrInvalidReceiptCap
	}
	return nil
}
