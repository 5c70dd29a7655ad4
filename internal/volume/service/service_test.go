package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	orderslip "github.com/smallbiznis/fuelledger/internal/orderslip/repository"
	"github.com/smallbiznis/fuelledger/internal/testutil"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type receiptRow struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	CompanyID   snowflake.ID
	OrderSlipID snowflake.ID
	volumedomain.Allocation
}

func (receiptRow) TableName() string { return "delivery_receipts" }

type fixture struct {
	svc  volumedomain.Service
	db   *gorm.DB
	node *snowflake.Node
	slip *orderslipdomain.OrderSlip
	ctx  context.Context
}

func newFixture(t *testing.T, ordered int64) *fixture {
	t.Helper()
	db := testutil.OpenDB(t, &orderslipdomain.OrderSlip{}, &receiptRow{})
	node := testutil.Node(t)

	slip := &orderslipdomain.OrderSlip{
		ID:              node.Generate(),
		CustomerID:      5,
		ProductCode:     "DIESEL",
		OrderedVolume:   decimal.NewFromInt(ordered),
		DeliveredVolume: decimal.Zero,
		UnitPrice:       decimal.NewFromInt(50),
		Status:          orderslipdomain.StatusHaulerAppointed,
	}
	slip.CompanyID = 1
	slip.ControlNumber = "COS0000000001"
	slip.ControlSeq = 1
	require.NoError(t, db.Create(slip).Error)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Slips: orderslip.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)),
	})
	return &fixture{
		svc:  svc,
		db:   db,
		node: node,
		slip: slip,
		ctx:  companycontext.WithCompanyID(context.Background(), 1),
	}
}

// admit reserves and inserts a receipt the way receipt creation does.
func (f *fixture) admit(volume int64) (*receiptRow, error) {
	var row *receiptRow
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.svc.Reserve(f.ctx, tx, f.slip, decimal.NewFromInt(volume)); err != nil {
			return err
		}
		row = &receiptRow{
			ID:          f.node.Generate(),
			CompanyID:   f.slip.CompanyID,
			OrderSlipID: f.slip.ID,
			Allocation:  volumedomain.Allocation{Volume: decimal.NewFromInt(volume)},
		}
		return tx.Create(row).Error
	})
	return row, err
}

func TestReserveEnforcesBudget(t *testing.T) {
	f := newFixture(t, 100)

	_, err := f.admit(120)
	require.Error(t, err)
	assert.ErrorIs(t, err, volumedomain.ErrInsufficientBudget)
	var budget *volumedomain.BudgetError
	require.ErrorAs(t, err, &budget)
	assert.True(t, budget.Requested.Equal(decimal.NewFromInt(120)))
	assert.True(t, budget.Remaining.Equal(decimal.NewFromInt(100)))

	_, err = f.admit(60)
	require.NoError(t, err)
	_, err = f.admit(40)
	require.NoError(t, err)

	_, err = f.admit(1)
	assert.ErrorIs(t, err, volumedomain.ErrInsufficientBudget)

	balance, err := f.svc.Balance(f.ctx, f.slip.ID)
	require.NoError(t, err)
	assert.True(t, balance.Reserved.Equal(decimal.NewFromInt(100)))
	assert.True(t, balance.Remaining.IsZero())
}

func TestCheckDoesNotReserve(t *testing.T) {
	f := newFixture(t, 100)

	balance, err := f.svc.Check(f.ctx, f.slip.ID, decimal.NewFromInt(80))
	require.NoError(t, err)
	assert.True(t, balance.Remaining.Equal(decimal.NewFromInt(100)))

	_, err = f.svc.Check(f.ctx, f.slip.ID, decimal.NewFromInt(101))
	assert.ErrorIs(t, err, volumedomain.ErrInsufficientBudget)

	_, err = f.svc.Check(f.ctx, f.slip.ID, decimal.Zero)
	assert.ErrorIs(t, err, volumedomain.ErrInvalidVolume)
}

func TestDeductAndReleaseAreIdempotent(t *testing.T) {
	f := newFixture(t, 100)
	row, err := f.admit(70)
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		deducted, err := f.svc.Deduct(f.ctx, tx, f.slip, row.ID, &row.Allocation)
		require.NoError(t, err)
		assert.True(t, deducted)

		deducted, err = f.svc.Deduct(f.ctx, tx, f.slip, row.ID, &row.Allocation)
		require.NoError(t, err)
		assert.False(t, deducted)
		return nil
	})
	require.NoError(t, err)

	balance, err := f.svc.Balance(f.ctx, f.slip.ID)
	require.NoError(t, err)
	assert.True(t, balance.Delivered.Equal(decimal.NewFromInt(70)))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		released, err := f.svc.Release(f.ctx, tx, f.slip, row.ID, &row.Allocation)
		require.NoError(t, err)
		assert.True(t, released)

		released, err = f.svc.Release(f.ctx, tx, f.slip, row.ID, &row.Allocation)
		require.NoError(t, err)
		assert.False(t, released)
		return nil
	})
	require.NoError(t, err)

	balance, err = f.svc.Balance(f.ctx, f.slip.ID)
	require.NoError(t, err)
	assert.True(t, balance.Delivered.IsZero())
	assert.True(t, balance.Reserved.IsZero())
	assert.True(t, balance.Remaining.Equal(decimal.NewFromInt(100)))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Deduct(f.ctx, tx, f.slip, row.ID, &row.Allocation)
		return err
	})
	assert.ErrorIs(t, err, volumedomain.ErrAlreadyReleased)
}
