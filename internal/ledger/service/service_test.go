package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	"github.com/smallbiznis/fuelledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var postedAt = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (ledgerdomain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t, &ledgerdomain.Entry{})
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(postedAt),
	})
	return svc, db
}

func receiptPosting() ledgerdomain.ReceiptPosting {
	return ledgerdomain.ReceiptPosting{
		CompanyID:      1,
		ReceiptID:      500,
		ControlNumber:  "DR0000000001",
		Volume:         decimal.NewFromInt(1000),
		UnitPrice:      decimal.NewFromInt(50),
		CommissionRate: decimal.RequireFromString("0.02"),
		FreightRate:    decimal.RequireFromString("0.01"),
		OccurredAt:     postedAt,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPostReceiptWritesOriginalsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	written, err := svc.PostReceipt(ctx, nil, receiptPosting())
	require.NoError(t, err)
	require.Len(t, written, 3)
	assert.True(t, ledgerdomain.Total(written, ledgerdomain.KindSales).Equal(dec("50000")))
	assert.True(t, ledgerdomain.Total(written, ledgerdomain.KindCommission).Equal(dec("1000")))
	assert.True(t, ledgerdomain.Total(written, ledgerdomain.KindFreight).Equal(dec("500")))

	again, err := svc.PostReceipt(ctx, nil, receiptPosting())
	require.NoError(t, err)
	assert.Empty(t, again)

	entries, err := svc.ListBySource(ctx, 1, ledgerdomain.SourceDeliveryReceipt, 500)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, ledgerdomain.EntryOriginal, e.EntryType)
		assert.Equal(t, "DR0000000001", e.Reference)
	}
}

func TestAppendCorrectionsLeavesOriginalsUntouched(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, nil, receiptPosting())
	require.NoError(t, err)

	correction := ledgerdomain.Correction{
		CompanyID:      1,
		ReceiptID:      500,
		ControlNumber:  "DR0000000001",
		RevisionID:     snowflake.ID(900),
		Volume:         decimal.NewFromInt(1000),
		BasePrice:      decimal.NewFromInt(50),
		PriceDelta:     decimal.NewFromInt(5),
		CommissionRate: dec("0.02"),
		FreightRate:    dec("0.01"),
		OccurredAt:     postedAt.Add(24 * time.Hour),
	}
	written, err := svc.AppendCorrections(ctx, nil, correction)
	require.NoError(t, err)
	require.Len(t, written, 3)
	assert.True(t, ledgerdomain.Total(written, ledgerdomain.KindCommission).Equal(dec("100")))
	assert.True(t, ledgerdomain.Total(written, ledgerdomain.KindFreight).Equal(dec("50")))
	assert.True(t, ledgerdomain.Total(written, ledgerdomain.KindSales).Equal(dec("5000")))

	again, err := svc.AppendCorrections(ctx, nil, correction)
	require.NoError(t, err)
	assert.Empty(t, again)

	entries, err := svc.ListBySource(ctx, 1, ledgerdomain.SourceDeliveryReceipt, 500)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	originals := 0
	for _, e := range entries {
		if e.EntryType == ledgerdomain.EntryOriginal {
			originals++
			if e.Kind == ledgerdomain.KindCommission {
				assert.True(t, e.Amount.Equal(dec("1000")))
			}
		}
	}
	assert.Equal(t, 3, originals)
	assert.True(t, ledgerdomain.Total(entries, ledgerdomain.KindCommission).Equal(dec("1100")))

	none, err := svc.AppendCorrections(ctx, nil, ledgerdomain.Correction{
		CompanyID: 1, ReceiptID: 500, ControlNumber: "DR0000000001", RevisionID: 901,
		Volume: decimal.NewFromInt(1000), OccurredAt: postedAt,
	})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReverseReceiptNetsToZero(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, nil, receiptPosting())
	require.NoError(t, err)

	reversals, err := svc.ReverseReceipt(ctx, nil, 1, 500, postedAt.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, reversals, 3)
	for _, r := range reversals {
		assert.Equal(t, ledgerdomain.EntryReversal, r.EntryType)
		require.NotNil(t, r.ReversesID)
	}

	again, err := svc.ReverseReceipt(ctx, nil, 1, 500, postedAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, again)

	entries, err := svc.ListBySource(ctx, 1, ledgerdomain.SourceDeliveryReceipt, 500)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	assert.True(t, ledgerdomain.Total(entries, "").IsZero())
}

func TestPostPlacementDisposition(t *testing.T) {
	svc, _ := newTestService(t)

	written, err := svc.PostPlacementDisposition(context.Background(), nil, ledgerdomain.PlacementPosting{
		CompanyID:     1,
		PlacementID:   77,
		ControlNumber: "PLC2025000001",
		Principal:     decimal.NewFromInt(100000),
		InterestRate:  dec("0.05"),
		EarnedGross:   dec("416.67"),
		EWTRate:       dec("0.2"),
		EWTAmount:     dec("83.33"),
		OccurredAt:    postedAt,
	})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, ledgerdomain.KindInterest, written[0].Kind)
	assert.Equal(t, ledgerdomain.KindEWT, written[1].Kind)
	assert.True(t, ledgerdomain.Total(written, "").Equal(dec("333.34")))
}

func TestEntriesAreImmutable(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	written, err := svc.PostReceipt(ctx, nil, receiptPosting())
	require.NoError(t, err)
	entry := written[0]

	err = db.Model(&entry).Update("amount", decimal.NewFromInt(1)).Error
	assert.ErrorIs(t, err, ledgerdomain.ErrImmutableEntry)

	err = db.Delete(&entry).Error
	assert.ErrorIs(t, err, ledgerdomain.ErrImmutableEntry)

	_, err = svc.PostReceipt(ctx, nil, ledgerdomain.ReceiptPosting{CompanyID: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSource)
}
