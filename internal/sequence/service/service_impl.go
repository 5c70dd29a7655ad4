package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/observability/tracing"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	"github.com/smallbiznis/fuelledger/internal/sequence/format"
	"github.com/smallbiznis/fuelledger/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     *config.BusinessConfigHolder
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	config     *config.BusinessConfigHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
	tables     map[sequencedomain.DocumentType]string
}

func NewService(p Params) sequencedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("sequence.service"),
		config:     p.Config,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
		tables:     sequencedomain.DefaultTables,
	}
}

func (s *Service) Next(ctx context.Context, companyID snowflake.ID, documentType sequencedomain.DocumentType, at time.Time) (sequencedomain.Issued, error) {
	scope, err := s.resolve(companyID, documentType, at)
	if err != nil {
		return sequencedomain.Issued{}, err
	}
	seq, err := s.maxSeq(ctx, s.db, scope)
	if err != nil {
		return sequencedomain.Issued{}, err
	}
	return scope.issue(seq+1, 0)
}

func (s *Service) Issue(
	ctx context.Context,
	conn *gorm.DB,
	companyID snowflake.ID,
	documentType sequencedomain.DocumentType,
	at time.Time,
	persist sequencedomain.PersistFunc,
) (sequencedomain.Issued, error) {
	if persist == nil {
		return sequencedomain.Issued{}, sequencedomain.ErrPersistRequired
	}
	if conn == nil {
		conn = s.db
	}
	scope, err := s.resolve(companyID, documentType, at)
	if err != nil {
		return sequencedomain.Issued{}, err
	}

	ctx, span := tracing.Tracer("sequence").Start(ctx, "sequence.issue")
	defer span.End()
	span.SetAttributes(
		attribute.String("document_type", string(documentType)),
		attribute.String("control_period", scope.period),
	)

	start := s.clock.Now()
	defer func() {
		s.obsMetrics.ObserveSequenceDuration(string(documentType), s.clock.Now().Sub(start))
	}()

	maxAttempts := s.config.Get().Sequence.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var issued sequencedomain.Issued
		err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := s.maxSeq(ctx, tx, scope)
			if err != nil {
				return err
			}
			issued, err = scope.issue(seq+1, attempt)
			if err != nil {
				return err
			}
			return persist(tx, issued)
		})
		if err == nil {
			s.obsMetrics.IncSequenceIssued(string(documentType))
			span.SetAttributes(attribute.Int("attempts", attempt))
			return issued, nil
		}
		if !db.IsDuplicateKeyErr(err) && !db.IsRetryableTxErr(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")
			return sequencedomain.Issued{}, err
		}

		s.obsMetrics.IncSequenceConflict(string(documentType))
		s.log.Debug("control number conflict, retrying",
			zap.String("document_type", string(documentType)),
			zap.String("company_id", companyID.String()),
			zap.Int64("seq", issued.Seq),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := ctx.Err(); err != nil {
			return sequencedomain.Issued{}, err
		}
	}

	s.obsMetrics.IncSequenceExhausted(string(documentType))
	span.SetStatus(codes.Error, "attempts exhausted")
	s.log.Warn("control number attempts exhausted",
		zap.String("document_type", string(documentType)),
		zap.String("company_id", companyID.String()),
		zap.Int("max_attempts", maxAttempts),
	)
	return sequencedomain.Issued{}, sequencedomain.ErrConcurrencyExhausted
}

type scope struct {
	companyID    snowflake.ID
	documentType sequencedomain.DocumentType
	table        string
	template     string
	period       string
	at           time.Time
}

func (sc scope) issue(seq int64, attempt int) (sequencedomain.Issued, error) {
	number, err := format.FormatControlNumber(sc.template, sc.at, seq)
	if err != nil {
		return sequencedomain.Issued{}, err
	}
	return sequencedomain.Issued{
		CompanyID:    sc.companyID,
		DocumentType: sc.documentType,
		Period:       sc.period,
		Seq:          seq,
		Number:       number,
		IssuedAt:     sc.at,
		Attempt:      attempt,
	}, nil
}

func (s *Service) resolve(companyID snowflake.ID, documentType sequencedomain.DocumentType, at time.Time) (scope, error) {
	if companyID == 0 {
		return scope{}, sequencedomain.ErrInvalidCompany
	}
	table, ok := s.tables[documentType]
	if !ok {
		return scope{}, sequencedomain.ErrUnknownDocumentType
	}
	scheme, ok := s.config.Get().Scheme(string(documentType))
	if !ok {
		return scope{}, fmt.Errorf("%w: no numbering scheme for %s", sequencedomain.ErrUnknownDocumentType, documentType)
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	period, err := format.Period(scheme.Reset, at)
	if err != nil {
		return scope{}, err
	}
	return scope{
		companyID:    companyID,
		documentType: documentType,
		table:        table,
		template:     scheme.Template,
		period:       period,
		at:           at.UTC(),
	}, nil
}

func (s *Service) maxSeq(ctx context.Context, tx *gorm.DB, sc scope) (int64, error) {
	var seq int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(control_seq), 0)
		 FROM `+sc.table+`
		 WHERE company_id = ? AND control_period = ?`,
		sc.companyID,
		sc.period,
	).Scan(&seq).Error
	return seq, err
}
