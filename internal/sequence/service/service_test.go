package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	"github.com/smallbiznis/fuelledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type slipRow struct {
	ID snowflake.ID `gorm:"primaryKey"`
	sequencedomain.Control
}

func (slipRow) TableName() string { return "order_slips" }

type placementRow struct {
	ID snowflake.ID `gorm:"primaryKey"`
	sequencedomain.Control
}

func (placementRow) TableName() string { return "placements" }

func newTestService(t *testing.T, mutate ...func(*config.BusinessConfig)) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	db := testutil.OpenDB(t, &slipRow{}, &placementRow{})
	node := testutil.Node(t)
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: testutil.BusinessConfig(mutate...),
		Clock:  clock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
	}).(*Service)
	return svc, db, node
}

func insertSlip(node *snowflake.Node) sequencedomain.PersistFunc {
	return func(tx *gorm.DB, issued sequencedomain.Issued) error {
		row := slipRow{ID: node.Generate()}
		issued.Apply(&row.Control)
		return tx.Create(&row).Error
	}
}

func TestIssueIsSequentialPerCompany(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	companyA := snowflake.ID(1)
	companyB := snowflake.ID(2)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Issue(ctx, nil, companyA, sequencedomain.DocumentOrderSlip, at, insertSlip(node))
	require.NoError(t, err)
	second, err := svc.Issue(ctx, nil, companyA, sequencedomain.DocumentOrderSlip, at, insertSlip(node))
	require.NoError(t, err)
	other, err := svc.Issue(ctx, nil, companyB, sequencedomain.DocumentOrderSlip, at, insertSlip(node))
	require.NoError(t, err)

	assert.Equal(t, "COS0000000001", first.Number)
	assert.Equal(t, "COS0000000002", second.Number)
	assert.Equal(t, "COS0000000001", other.Number)
	assert.Equal(t, 1, first.Attempt)
}

func TestNextPreviewsWithoutReserving(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	preview, err := svc.Next(ctx, 1, sequencedomain.DocumentOrderSlip, at)
	require.NoError(t, err)
	again, err := svc.Next(ctx, 1, sequencedomain.DocumentOrderSlip, at)
	require.NoError(t, err)
	assert.Equal(t, preview.Number, again.Number)

	issued, err := svc.Issue(ctx, nil, 1, sequencedomain.DocumentOrderSlip, at, insertSlip(node))
	require.NoError(t, err)
	assert.Equal(t, preview.Number, issued.Number)
}

func TestAnnualResetStartsNewPeriod(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	persist := func(tx *gorm.DB, issued sequencedomain.Issued) error {
		row := placementRow{ID: node.Generate()}
		issued.Apply(&row.Control)
		return tx.Create(&row).Error
	}

	dec := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	jan := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)

	a, err := svc.Issue(ctx, db, 1, sequencedomain.DocumentPlacement, dec, persist)
	require.NoError(t, err)
	b, err := svc.Issue(ctx, db, 1, sequencedomain.DocumentPlacement, dec, persist)
	require.NoError(t, err)
	c, err := svc.Issue(ctx, db, 1, sequencedomain.DocumentPlacement, jan, persist)
	require.NoError(t, err)

	assert.Equal(t, "PLC2024000001", a.Number)
	assert.Equal(t, "PLC2024000002", b.Number)
	assert.Equal(t, "PLC2025000001", c.Number)
	assert.Equal(t, "2025", c.Period)
}

func TestIssueRetriesConflicts(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	calls := 0
	flaky := func(tx *gorm.DB, issued sequencedomain.Issued) error {
		calls++
		if calls < 3 {
			return gorm.ErrDuplicatedKey
		}
		return insertSlip(node)(tx, issued)
	}

	issued, err := svc.Issue(ctx, db, 1, sequencedomain.DocumentOrderSlip, at, flaky)
	require.NoError(t, err)
	assert.Equal(t, 3, issued.Attempt)
	assert.Equal(t, "COS0000000001", issued.Number)

	var count int64
	require.NoError(t, db.Model(&slipRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIssueExhaustsOnRealUniqueViolation(t *testing.T) {
	// monthly reset with a template that ignores the month collides across periods
	svc, db, node := newTestService(t, func(cfg *config.BusinessConfig) {
		cfg.Numbering[config.DocumentOrderSlip] = config.NumberingScheme{Template: "COS{SEQ4}", Reset: config.ResetMonthly}
		cfg.Sequence.MaxAttempts = 3
	})
	ctx := context.Background()

	april := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Issue(ctx, db, 1, sequencedomain.DocumentOrderSlip, april, insertSlip(node))
	require.NoError(t, err)

	_, err = svc.Issue(ctx, db, 1, sequencedomain.DocumentOrderSlip, may, insertSlip(node))
	assert.ErrorIs(t, err, sequencedomain.ErrConcurrencyExhausted)

	var count int64
	require.NoError(t, db.Model(&slipRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIssueExhaustsAttempts(t *testing.T) {
	svc, db, _ := newTestService(t, func(cfg *config.BusinessConfig) {
		cfg.Sequence.MaxAttempts = 4
	})

	calls := 0
	_, err := svc.Issue(context.Background(), db, 1, sequencedomain.DocumentOrderSlip, time.Time{}, func(tx *gorm.DB, issued sequencedomain.Issued) error {
		calls++
		return errors.New("constraint failed: UNIQUE constraint failed: order_slips.control_number (2067)")
	})
	assert.ErrorIs(t, err, sequencedomain.ErrConcurrencyExhausted)
	assert.Equal(t, 4, calls)
}

func TestIssueReturnsNonConflictErrors(t *testing.T) {
	svc, db, _ := newTestService(t)
	boom := errors.New("boom")

	calls := 0
	_, err := svc.Issue(context.Background(), db, 1, sequencedomain.DocumentOrderSlip, time.Time{}, func(tx *gorm.DB, issued sequencedomain.Issued) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIssueRejectsUnknownScope(t *testing.T) {
	svc, db, node := newTestService(t)

	_, err := svc.Issue(context.Background(), db, 0, sequencedomain.DocumentOrderSlip, time.Time{}, insertSlip(node))
	assert.ErrorIs(t, err, sequencedomain.ErrInvalidCompany)

	_, err = svc.Issue(context.Background(), db, 1, "credit_memo", time.Time{}, insertSlip(node))
	assert.ErrorIs(t, err, sequencedomain.ErrUnknownDocumentType)

	_, err = svc.Issue(context.Background(), db, 1, sequencedomain.DocumentOrderSlip, time.Time{}, nil)
	assert.ErrorIs(t, err, sequencedomain.ErrPersistRequired)
}

func TestConcurrentIssueHasNoGapsOrDuplicates(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, db, 1, sequencedomain.DocumentOrderSlip, at, insertSlip(node))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var seqs []int64
	require.NoError(t, db.Model(&slipRow{}).Order("control_seq").Pluck("control_seq", &seqs).Error)
	require.Len(t, seqs, workers)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}
