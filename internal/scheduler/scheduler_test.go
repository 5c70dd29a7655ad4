package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	"github.com/smallbiznis/fuelledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obsmetrics.New(registry, obsmetrics.Config{
		ServiceName: "fuelledger",
		Environment: "test",
	})

	s := &Scheduler{log: zap.NewNop(), genID: testutil.Node(t), clock: clock.NewFakeClock(time.Time{}), metrics: metrics}
	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "fuelledger",
		"env":     "test",
		"job":     "timeout_job",
		"kind":    "timeout",
	}
	if got := getCounterValue(t, registry, "fuelledger_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}
	runLabels := map[string]string{
		"service": "fuelledger",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "fuelledger_scheduler_job_runs_total", runLabels); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
}

func TestRunJobWrapsErrors(t *testing.T) {
	s := &Scheduler{log: zap.NewNop(), genID: testutil.Node(t), clock: clock.NewFakeClock(time.Time{})}
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", 1, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	assert.True(t, s.isJobEnabled(JobExpireOrderSlips))

	s.cfg.EnabledJobs = []string{"other"}
	assert.False(t, s.isJobEnabled(JobExpireOrderSlips))

	s.cfg.EnabledJobs = []string{"EXPIRE_ORDER_SLIPS"}
	assert.True(t, s.isJobEnabled(JobExpireOrderSlips))
}

type mockOrderSlips struct {
	mock.Mock
	orderslipdomain.Service
}

func (m *mockOrderSlips) Transition(ctx context.Context, id snowflake.ID, req orderslipdomain.TransitionRequest) (orderslipdomain.OrderSlip, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(orderslipdomain.OrderSlip), args.Error(1)
}

func inCompany(id snowflake.ID) any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		got, ok := companycontext.CompanyIDFromContext(ctx)
		return ok && got == id
	})
}

func TestExpireOrderSlipsJob(t *testing.T) {
	db := testutil.OpenDB(t, &orderslipdomain.OrderSlip{})
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	seed := []struct {
		id        snowflake.ID
		companyID snowflake.ID
		status    orderslipdomain.Status
		expiresAt *time.Time
	}{
		{101, 5, orderslipdomain.StatusForDR, &past},
		{102, 5, orderslipdomain.StatusClosed, &past},
		{103, 5, orderslipdomain.StatusCreated, &future},
		{104, 5, orderslipdomain.StatusCreated, nil},
		{105, 6, orderslipdomain.StatusSupplierAppointed, &past},
		{106, 6, orderslipdomain.StatusCreated, &now},
	}
	for i, row := range seed {
		require.NoError(t, db.Create(&orderslipdomain.OrderSlip{
			ID: row.id,
			Control: sequencedomain.Control{
				CompanyID:     row.companyID,
				ControlNumber: fmt.Sprintf("OS%06d", i+1),
				ControlPeriod: "2025",
				ControlSeq:    int64(i + 1),
			},
			CustomerID:    1,
			ProductCode:   "DSL",
			OrderedVolume: decimal.NewFromInt(1000),
			UnitPrice:     decimal.NewFromInt(50),
			Status:        row.status,
			ExpiresAt:     row.expiresAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}).Error)
	}

	slips := &mockOrderSlips{}
	expire := orderslipdomain.TransitionRequest{Target: orderslipdomain.StatusExpired, Reason: expiryReason}
	slips.On("Transition", inCompany(5), snowflake.ID(101), expire).
		Return(orderslipdomain.OrderSlip{ID: 101, Status: orderslipdomain.StatusExpired}, nil).Once()
	slips.On("Transition", inCompany(6), snowflake.ID(105), expire).
		Return(orderslipdomain.OrderSlip{}, errors.New("database is locked")).Once()
	slips.On("Transition", inCompany(6), snowflake.ID(106), expire).
		Return(orderslipdomain.OrderSlip{}, orderslipdomain.ErrNotExpired).Once()

	sched, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      testutil.Node(t),
		OrderSlips: slips,
		Clock:      clock.NewFakeClock(now),
		Config:     Config{BatchSize: 2},
	})
	require.NoError(t, err)

	err = sched.ExpireOrderSlipsJob(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.ErrorIs(t, err, orderslipdomain.ErrNotExpired)
	slips.AssertExpectations(t)
	slips.AssertNotCalled(t, "Transition", mock.Anything, snowflake.ID(102), mock.Anything)
	slips.AssertNotCalled(t, "Transition", mock.Anything, snowflake.ID(103), mock.Anything)
	slips.AssertNotCalled(t, "Transition", mock.Anything, snowflake.ID(104), mock.Anything)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
