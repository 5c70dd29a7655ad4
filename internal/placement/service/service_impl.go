package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/events"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/observability/tracing"
	"github.com/smallbiznis/fuelledger/internal/placement/domain"
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
	Sequence   sequencedomain.Service
	Ledger     ledgerdomain.Service
	Config     *config.BusinessConfigHolder
	Outbox     *events.Outbox      `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	sequence   sequencedomain.Service
	ledger     ledgerdomain.Service
	config     *config.BusinessConfigHolder
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
		log:        p.Log.Named("placement.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		sequence:   p.Sequence,
		ledger:     p.Ledger,
		config:     p.Config,
		outbox:     p.Outbox,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Placement, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.Placement{}, domain.ErrInvalidCompany
	}

	placement := domain.Placement{
		BankName:       strings.TrimSpace(req.BankName),
		AccountNumber:  strings.TrimSpace(req.AccountNumber),
		PlacementType:  strings.TrimSpace(req.PlacementType),
		Principal:      req.Principal,
		InterestRate:   req.InterestRate,
		FromDate:       req.FromDate.UTC(),
		ToDate:         req.ToDate.UTC(),
		HasEWT:         req.HasEWT,
		EWTRate:        rateOrZero(req.HasEWT, req.EWTRate),
		HasTrustFee:    req.HasTrustFee,
		TrustFeeRate:   rateOrZero(req.HasTrustFee, req.TrustFeeRate),
		Status:         domain.StatusUnposted,
		InterestStatus: domain.InterestNotApplicable,
		BatchNumber:    strings.TrimSpace(req.BatchNumber),
	}
	if err := validateAccount(placement.BankName, placement.AccountNumber); err != nil {
		return domain.Placement{}, err
	}
	if placement.PlacementType == "" {
		return domain.Placement{}, domain.ErrInvalidType
	}
	placement.BasisDays = s.basisDays(placement.PlacementType)
	terms := placement.Terms()
	if err := terms.Validate(); err != nil {
		return domain.Placement{}, err
	}
	placement.Apply(domain.Compute(terms))

	now := s.clock.Now().UTC()
	placement.ID = s.genID.Generate()
	placement.CreatedAt = now
	placement.UpdatedAt = now

	_, err := s.sequence.Issue(ctx, s.db, companyID, sequencedomain.DocumentPlacement, now, func(tx *gorm.DB, issued sequencedomain.Issued) error {
		issued.Apply(&placement.Control)
		if err := s.repo.Insert(ctx, tx, &placement); err != nil {
			return err
		}
		return s.publish(ctx, tx, events.EventPlacementCreated, "", &placement, nil)
	})
	if err != nil {
		return domain.Placement{}, err
	}
	return placement, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Placement, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.Placement{}, domain.ErrInvalidCompany
	}
	placement, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.Placement{}, err
	}
	if placement == nil {
		return domain.Placement{}, domain.ErrNotFound
	}
	return *placement, nil
}

func (s *Service) ListBatch(ctx context.Context, batchNumber string) ([]domain.Placement, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidCompany
	}
	batchNumber = strings.TrimSpace(batchNumber)
	if batchNumber == "" {
		return []domain.Placement{}, nil
	}
	items, err := s.repo.ListBatch(ctx, s.db, companyID, batchNumber)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Placement, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) ListSwaps(ctx context.Context, id snowflake.ID) ([]domain.PlacementSwap, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidCompany
	}
	items, err := s.repo.ListSwaps(ctx, s.db, companyID, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PlacementSwap, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) UpdateTerms(ctx context.Context, id snowflake.ID, update domain.TermsUpdate) (domain.Placement, error) {
	var updated domain.Placement
	err := s.withPlacement(ctx, id, func(tx *gorm.DB, p *domain.Placement, now time.Time) error {
		if p.Status != domain.StatusUnposted && p.Status != domain.StatusPosted {
			return domain.ErrTermsFrozen
		}
		if p.Matured(now) {
			return domain.ErrMatured
		}

		if update.Principal != nil {
			p.Principal = *update.Principal
		}
		if update.InterestRate != nil {
			p.InterestRate = *update.InterestRate
		}
		if update.FromDate != nil {
			p.FromDate = update.FromDate.UTC()
		}
		if update.ToDate != nil {
			p.ToDate = update.ToDate.UTC()
		}
		if update.HasEWT != nil {
			p.HasEWT = *update.HasEWT
		}
		if update.EWTRate != nil {
			p.EWTRate = *update.EWTRate
		}
		if update.HasTrustFee != nil {
			p.HasTrustFee = *update.HasTrustFee
		}
		if update.TrustFeeRate != nil {
			p.TrustFeeRate = *update.TrustFeeRate
		}
		p.EWTRate = rateOrZero(p.HasEWT, p.EWTRate)
		p.TrustFeeRate = rateOrZero(p.HasTrustFee, p.TrustFeeRate)

		terms := p.Terms()
		if err := terms.Validate(); err != nil {
			return err
		}
		p.Apply(domain.Compute(terms))
		p.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = *p
		return s.publish(ctx, tx, events.EventPlacementTermsUpdated, strconv.FormatInt(now.UnixNano(), 10), p, nil)
	})
	if err != nil {
		return domain.Placement{}, err
	}
	return updated, nil
}

func (s *Service) Post(ctx context.Context, id snowflake.ID) (domain.Placement, error) {
	return s.advance(ctx, id, domain.EventPost, events.EventPlacementPosted)
}

func (s *Service) Lock(ctx context.Context, id snowflake.ID) (domain.Placement, error) {
	return s.advance(ctx, id, domain.EventLock, events.EventPlacementLocked)
}

func (s *Service) Withdraw(ctx context.Context, id snowflake.ID) (domain.Placement, error) {
	var (
		updated domain.Placement
		from    domain.Status
	)
	err := s.withPlacement(ctx, id, func(tx *gorm.DB, p *domain.Placement, now time.Time) error {
		from = p.Status
		if _, err := domain.Machine.Fire(p.Status, domain.EventTerminate); err != nil {
			return err
		}
		if !p.Matured(now) {
			return domain.ErrNotMatured
		}
		if err := s.dispose(ctx, tx, p, domain.InterestWithdrawn, now); err != nil {
			return err
		}
		updated = *p
		return s.publish(ctx, tx, events.EventPlacementWithdrawn, "", p, nil)
	})
	if err != nil {
		return domain.Placement{}, err
	}
	s.obsMetrics.IncStateTransition("placement", string(from), string(updated.Status))
	s.obsMetrics.IncPlacementDisposition(string(domain.InterestWithdrawn))
	return updated, nil
}

func (s *Service) RollOver(ctx context.Context, id snowflake.ID, req domain.RollOverRequest) (domain.RollOverResult, error) {
	ctx, span := tracing.Tracer("placement").Start(ctx, "placement.rollover")
	defer span.End()

	var (
		result domain.RollOverResult
		from   domain.Status
	)
	err := s.withPlacement(ctx, id, func(tx *gorm.DB, source *domain.Placement, now time.Time) error {
		from = source.Status
		if _, err := domain.Machine.Fire(source.Status, domain.EventTerminate); err != nil {
			return err
		}
		if !source.Matured(now) {
			return domain.ErrNotMatured
		}
		if source.BatchNumber == "" {
			source.BatchNumber = source.ControlNumber
		}
		if err := s.dispose(ctx, tx, source, domain.InterestRolled, now); err != nil {
			return err
		}

		rolled, err := s.successor(*source, req)
		if err != nil {
			return err
		}
		rolled.BatchNumber = source.BatchNumber
		rolled.ID = s.genID.Generate()
		rolled.CreatedAt = now
		rolled.UpdatedAt = now

		_, err = s.sequence.Issue(ctx, tx, source.CompanyID, sequencedomain.DocumentPlacement, now, func(tx *gorm.DB, issued sequencedomain.Issued) error {
			issued.Apply(&rolled.Control)
			return s.repo.Insert(ctx, tx, &rolled)
		})
		if err != nil {
			return err
		}
		result = domain.RollOverResult{Source: *source, Rolled: rolled}
		return s.publish(ctx, tx, events.EventPlacementRolledOver, "", source, map[string]any{
			"rolled_id":             rolled.ID.String(),
			"rolled_control_number": rolled.ControlNumber,
			"rolled_principal":      rolled.Principal.String(),
		})
	})
	if err != nil {
		return domain.RollOverResult{}, err
	}
	s.obsMetrics.IncStateTransition("placement", string(from), string(result.Source.Status))
	s.obsMetrics.IncPlacementDisposition(string(domain.InterestRolled))
	return result, nil
}

func (s *Service) Swap(ctx context.Context, id snowflake.ID, req domain.SwapRequest) (domain.Placement, error) {
	var updated domain.Placement
	err := s.withPlacement(ctx, id, func(tx *gorm.DB, p *domain.Placement, now time.Time) error {
		if p.Status == domain.StatusTerminated {
			return domain.ErrInvalidSwap
		}
		bank := strings.TrimSpace(req.BankName)
		if bank == "" {
			bank = p.BankName
		}
		account := strings.TrimSpace(req.AccountNumber)
		if account == "" {
			account = p.AccountNumber
		}
		if bank == p.BankName && account == p.AccountNumber {
			return domain.ErrInvalidSwap
		}

		swap := domain.PlacementSwap{
			ID:                s.genID.Generate(),
			CompanyID:         p.CompanyID,
			PlacementID:       p.ID,
			FromBankName:      p.BankName,
			FromAccountNumber: p.AccountNumber,
			ToBankName:        bank,
			ToAccountNumber:   account,
			Reason:            strings.TrimSpace(req.Reason),
			SwappedAt:         now,
		}
		if err := s.repo.InsertSwap(ctx, tx, &swap); err != nil {
			return err
		}
		p.BankName = bank
		p.AccountNumber = account
		p.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = *p
		return s.publish(ctx, tx, events.EventPlacementSwapped, swap.ID.String(), p, map[string]any{
			"swap_id":             swap.ID.String(),
			"from_bank_name":      swap.FromBankName,
			"from_account_number": swap.FromAccountNumber,
		})
	})
	if err != nil {
		return domain.Placement{}, err
	}
	return updated, nil
}

func (s *Service) advance(ctx context.Context, id snowflake.ID, event domain.Event, eventType string) (domain.Placement, error) {
	var (
		updated domain.Placement
		from    domain.Status
	)
	err := s.withPlacement(ctx, id, func(tx *gorm.DB, p *domain.Placement, now time.Time) error {
		from = p.Status
		to, err := domain.Machine.Fire(p.Status, event)
		if err != nil {
			return err
		}
		p.Status = to
		p.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = *p
		return s.publish(ctx, tx, eventType, "", p, nil)
	})
	if err != nil {
		return domain.Placement{}, err
	}
	s.obsMetrics.IncStateTransition("placement", string(from), string(updated.Status))
	return updated, nil
}

// dispose freezes the computed snapshot, terminates the placement and books
// its interest.
func (s *Service) dispose(ctx context.Context, tx *gorm.DB, p *domain.Placement, interest domain.InterestStatus, now time.Time) error {
	p.Apply(domain.Compute(p.Terms()))
	p.Status = domain.StatusTerminated
	p.InterestStatus = interest
	p.DisposedAt = &now
	p.UpdatedAt = now

	_, err := s.ledger.PostPlacementDisposition(ctx, tx, ledgerdomain.PlacementPosting{
		CompanyID:      p.CompanyID,
		PlacementID:    p.ID,
		ControlNumber:  p.ControlNumber,
		Principal:      p.Principal,
		InterestRate:   p.InterestRate,
		EarnedGross:    p.EarnedGross,
		EWTRate:        p.EWTRate,
		EWTAmount:      p.EWTAmount,
		TrustFeeRate:   p.TrustFeeRate,
		TrustFeeAmount: p.TrustFeeAmount,
		OccurredAt:     now,
	})
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, tx, p)
}

// successor builds the placement that continues source after a rollover.
func (s *Service) successor(source domain.Placement, req domain.RollOverRequest) (domain.Placement, error) {
	principal := source.MaturityValue
	if req.Amount != nil {
		if !req.Amount.IsPositive() || req.Amount.GreaterThan(source.MaturityValue) {
			return domain.Placement{}, domain.ErrInvalidRollAmount
		}
		principal = *req.Amount
	}
	rate := source.InterestRate
	if req.InterestRate != nil {
		rate = *req.InterestRate
	}
	termDays := source.TermDays
	if req.TermDays > 0 {
		termDays = req.TermDays
	}
	bank := strings.TrimSpace(req.BankName)
	if bank == "" {
		bank = source.BankName
	}
	account := strings.TrimSpace(req.AccountNumber)
	if account == "" {
		account = source.AccountNumber
	}

	sourceID := source.ID
	rolled := domain.Placement{
		BankName:       bank,
		AccountNumber:  account,
		PlacementType:  source.PlacementType,
		Principal:      principal,
		InterestRate:   rate,
		FromDate:       source.ToDate,
		ToDate:         source.ToDate.AddDate(0, 0, termDays),
		BasisDays:      s.basisDays(source.PlacementType),
		HasEWT:         source.HasEWT,
		EWTRate:        source.EWTRate,
		HasTrustFee:    source.HasTrustFee,
		TrustFeeRate:   source.TrustFeeRate,
		Status:         domain.StatusPosted,
		InterestStatus: domain.InterestNotApplicable,
		RolledFromID:   &sourceID,
	}
	terms := rolled.Terms()
	if err := terms.Validate(); err != nil {
		return domain.Placement{}, err
	}
	rolled.Apply(domain.Compute(terms))
	return rolled, nil
}

func (s *Service) withPlacement(ctx context.Context, id snowflake.ID, fn func(tx *gorm.DB, p *domain.Placement, now time.Time) error) error {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidCompany
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		placement, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		if placement == nil {
			return domain.ErrNotFound
		}
		return fn(tx, placement, s.clock.Now().UTC())
	})
}

// publish writes a placement event. Events that can repeat for the same
// placement pass a suffix to keep their dedupe keys distinct.
func (s *Service) publish(ctx context.Context, tx *gorm.DB, eventType, suffix string, p *domain.Placement, extra map[string]any) error {
	key := eventType + ":" + p.ID.String()
	if suffix != "" {
		key += ":" + suffix
	}
	payload := map[string]any{
		"control_number":  p.ControlNumber,
		"status":          string(p.Status),
		"interest_status": string(p.InterestStatus),
		"principal":       p.Principal.String(),
		"maturity_value":  p.MaturityValue.String(),
		"batch_number":    p.BatchNumber,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		CompanyID:     p.CompanyID,
		Type:          eventType,
		AggregateType: "placement",
		AggregateID:   p.ID,
		DedupeKey:     key,
		Payload:       payload,
	})
}

func (s *Service) basisDays(placementType string) int {
	if s.config == nil {
		return config.DefaultBusinessConfig().BasisDaysFor(placementType)
	}
	return s.config.Get().BasisDaysFor(placementType)
}

func validateAccount(bank, account string) error {
	if bank == "" {
		return domain.ErrInvalidBank
	}
	if account == "" {
		return domain.ErrInvalidAccount
	}
	return nil
}

func rateOrZero(enabled bool, rate decimal.Decimal) decimal.Decimal {
	if !enabled {
		return decimal.Zero
	}
	return rate
}
