package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	receiptrepo "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/repository"
	receiptservice "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/service"
	"github.com/smallbiznis/fuelledger/internal/events"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/fuelledger/internal/ledger/service"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	ordersliprepo "github.com/smallbiznis/fuelledger/internal/orderslip/repository"
	orderslipservice "github.com/smallbiznis/fuelledger/internal/orderslip/service"
	"github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	"github.com/smallbiznis/fuelledger/internal/recalculation/repository"
	sequenceservice "github.com/smallbiznis/fuelledger/internal/sequence/service"
	"github.com/smallbiznis/fuelledger/internal/testutil"
	volumeservice "github.com/smallbiznis/fuelledger/internal/volume/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// flakyLedger fails corrections for the receipts listed in failFor.
type flakyLedger struct {
	ledgerdomain.Service
	failFor map[snowflake.ID]bool
}

func (l *flakyLedger) AppendCorrections(ctx context.Context, db *gorm.DB, c ledgerdomain.Correction) ([]ledgerdomain.Entry, error) {
	if l.failFor[c.ReceiptID] {
		return nil, errors.New("ledger unavailable")
	}
	return l.Service.AppendCorrections(ctx, db, c)
}

type harness struct {
	db       *gorm.DB
	ctx      context.Context
	clock    *clock.FakeClock
	slips    orderslipdomain.Service
	slipRepo orderslipdomain.Repository
	receipts receiptdomain.Service
	ledger   *flakyLedger
	svc      domain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t,
		&orderslipdomain.OrderSlip{},
		&receiptdomain.DeliveryReceipt{},
		&ledgerdomain.Entry{},
		&events.OutboxEvent{},
		&domain.PriceRevision{},
		&domain.ReceiptAdjustment{},
	)
	node := testutil.Node(t)
	fake := clock.NewFakeClock(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	outbox := events.NewOutbox(node, fake)

	rRepo := receiptrepo.Provide()
	sRepo := ordersliprepo.Provide()
	seq := sequenceservice.NewService(sequenceservice.Params{DB: db, Log: log, Config: testutil.BusinessConfig(), Clock: fake})
	vol := volumeservice.NewService(volumeservice.Params{DB: db, Log: log, Slips: sRepo, Clock: fake})
	ledger := &flakyLedger{
		Service: ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: fake}),
		failFor: map[snowflake.ID]bool{},
	}

	return &harness{
		db:       db,
		ctx:      companycontext.WithCompanyID(context.Background(), snowflake.ID(3)),
		clock:    fake,
		slipRepo: sRepo,
		slips: orderslipservice.NewService(orderslipservice.Params{
			DB: db, Log: log, GenID: node, Repo: sRepo, Receipts: rRepo, Sequence: seq, Outbox: outbox, Clock: fake,
		}),
		receipts: receiptservice.NewService(receiptservice.Params{
			DB: db, Log: log, GenID: node, Repo: rRepo, Slips: sRepo, Sequence: seq,
			Volume: vol, Ledger: ledger, Outbox: outbox, Clock: fake,
		}),
		ledger: ledger,
		svc: NewService(Params{
			DB: db, Log: log, GenID: node, Repo: repository.Provide(), Receipts: rRepo, Slips: sRepo,
			Ledger: ledger, Outbox: outbox, Clock: fake,
		}),
	}
}

func (h *harness) slip(t *testing.T) orderslipdomain.OrderSlip {
	t.Helper()
	slip, err := h.slips.Create(h.ctx, orderslipdomain.CreateRequest{
		CustomerID:     4,
		ProductCode:    "GASOLINE",
		OrderedVolume:  decimal.NewFromInt(10000),
		UnitPrice:      decimal.NewFromInt(50),
		CommissionRate: decimal.RequireFromString("0.02"),
		FreightRate:    decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	supplier, hauler := snowflake.ID(1), snowflake.ID(2)
	_, err = h.slips.Transition(h.ctx, slip.ID, orderslipdomain.TransitionRequest{Target: orderslipdomain.StatusSupplierAppointed, SupplierID: &supplier})
	require.NoError(t, err)
	slip, err = h.slips.Transition(h.ctx, slip.ID, orderslipdomain.TransitionRequest{Target: orderslipdomain.StatusHaulerAppointed, HaulerID: &hauler})
	require.NoError(t, err)
	return slip
}

func (h *harness) receipt(t *testing.T, slipID snowflake.ID, volume int64, invoice bool) receiptdomain.DeliveryReceipt {
	t.Helper()
	receipt, err := h.receipts.Create(h.ctx, receiptdomain.CreateRequest{OrderSlipID: slipID, Volume: decimal.NewFromInt(volume)})
	require.NoError(t, err)
	if !invoice {
		return receipt
	}
	for _, target := range []receiptdomain.Status{receiptdomain.StatusForInvoicing, receiptdomain.StatusInvoiced} {
		receipt, err = h.receipts.Transition(h.ctx, receipt.ID, receiptdomain.TransitionRequest{Target: target})
		require.NoError(t, err)
	}
	return receipt
}

func (h *harness) entries(t *testing.T, receiptID snowflake.ID) []ledgerdomain.Entry {
	t.Helper()
	entries, err := h.ledger.ListBySource(h.ctx, 3, ledgerdomain.SourceDeliveryReceipt, receiptID)
	require.NoError(t, err)
	return entries
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRecalculateReceiptAppendsCorrections(t *testing.T) {
	h := newHarness(t)
	slip := h.slip(t)
	receipt := h.receipt(t, slip.ID, 1000, true)

	h.clock.Advance(24 * time.Hour)
	result, err := h.svc.RecalculateReceipt(h.ctx, receipt.ID, dec("55"), "renegotiated")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, domain.OutcomeApplied, item.Outcome)
	require.NotNil(t, item.Adjustment)
	assert.True(t, item.Adjustment.CommissionDelta.Equal(dec("100")))
	assert.True(t, item.Adjustment.FreightDelta.Equal(dec("50")))
	assert.True(t, result.Revision.PreviousPrice.Equal(dec("50")))

	entries := h.entries(t, receipt.ID)
	require.Len(t, entries, 6)
	for _, e := range entries {
		switch e.EntryType {
		case ledgerdomain.EntryOriginal:
			if e.Kind == ledgerdomain.KindCommission {
				assert.True(t, e.Amount.Equal(dec("1000")))
			}
		case ledgerdomain.EntryCorrection:
			assert.Equal(t, receipt.ControlNumber, e.Reference)
			assert.True(t, e.OccurredAt.Equal(h.clock.Now()))
		}
	}

	frozen, err := h.receipts.Get(h.ctx, receipt.ID)
	require.NoError(t, err)
	assert.True(t, frozen.PostedUnitPrice.Equal(dec("50")))

	// a second revision is measured against the already corrected price
	result, err = h.svc.RecalculateReceipt(h.ctx, receipt.ID, dec("60"), "")
	require.NoError(t, err)
	assert.True(t, result.Items[0].Adjustment.EffectivePrice.Equal(dec("55")))
	assert.True(t, ledgerdomain.Total(h.entries(t, receipt.ID), ledgerdomain.KindCommission).Equal(dec("1200")))

	adjustments, err := h.svc.ListAdjustments(h.ctx, receipt.ID)
	require.NoError(t, err)
	assert.Len(t, adjustments, 2)
}

func TestRecalculateReceiptWithSamePriceIsUnchanged(t *testing.T) {
	h := newHarness(t)
	slip := h.slip(t)
	receipt := h.receipt(t, slip.ID, 100, true)

	result, err := h.svc.RecalculateReceipt(h.ctx, receipt.ID, dec("50"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, result.Items[0].Outcome)
	assert.Len(t, h.entries(t, receipt.ID), 3)
}

func TestRecalculateReceiptRequiresPosting(t *testing.T) {
	h := newHarness(t)
	slip := h.slip(t)
	receipt := h.receipt(t, slip.ID, 100, false)

	_, err := h.svc.RecalculateReceipt(h.ctx, receipt.ID, dec("55"), "")
	assert.ErrorIs(t, err, domain.ErrReceiptNotPosted)

	_, err = h.svc.RecalculateReceipt(h.ctx, 12345, dec("55"), "")
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
}

func TestRecalculateOrderSlipReportsPerReceipt(t *testing.T) {
	h := newHarness(t)
	slip := h.slip(t)
	first := h.receipt(t, slip.ID, 1000, true)
	second := h.receipt(t, slip.ID, 500, true)
	third := h.receipt(t, slip.ID, 200, true)
	h.receipt(t, slip.ID, 300, false)

	h.ledger.failFor[second.ID] = true
	result, err := h.svc.RecalculateOrderSlip(h.ctx, slip.ID, dec("55"), "price update")
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, first.ID, result.Items[0].ReceiptID)
	assert.Equal(t, domain.OutcomeApplied, result.Items[0].Outcome)
	assert.Equal(t, domain.OutcomeFailed, result.Items[1].Outcome)
	assert.Error(t, result.Items[1].Err)
	assert.Equal(t, domain.OutcomeApplied, result.Items[2].Outcome)
	assert.False(t, result.Complete())

	updated, err := h.slipRepo.FindByID(h.ctx, h.db, 3, slip.ID)
	require.NoError(t, err)
	assert.True(t, updated.UnitPrice.Equal(dec("55")))

	assert.Len(t, h.entries(t, first.ID), 6)
	assert.Len(t, h.entries(t, second.ID), 3)
	assert.Len(t, h.entries(t, third.ID), 6)

	pending, err := h.svc.Pending(h.ctx, result.Revision.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	delete(h.ledger.failFor, second.ID)
	retried, err := h.svc.Retry(h.ctx, result.Revision.ID)
	require.NoError(t, err)
	require.Len(t, retried.Items, 1)
	assert.Equal(t, domain.OutcomeApplied, retried.Items[0].Outcome)
	assert.True(t, retried.Items[0].Adjustment.CommissionDelta.Equal(dec("50")))

	pending, err = h.svc.Pending(h.ctx, result.Revision.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	again, err := h.svc.Retry(h.ctx, result.Revision.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Items)
	assert.True(t, again.Complete())
}

func TestSuccessiveSlipRevisionsCompound(t *testing.T) {
	h := newHarness(t)
	slip := h.slip(t)
	receipt := h.receipt(t, slip.ID, 1000, true)

	first, err := h.svc.RecalculateOrderSlip(h.ctx, slip.ID, dec("55"), "")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.True(t, first.Items[0].Adjustment.PriceDelta.Equal(dec("5")))

	second, err := h.svc.RecalculateOrderSlip(h.ctx, slip.ID, dec("60"), "")
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.True(t, second.Revision.PreviousPrice.Equal(dec("55")))
	assert.True(t, second.Items[0].Adjustment.EffectivePrice.Equal(dec("55")))
	assert.True(t, second.Items[0].Adjustment.PriceDelta.Equal(dec("5")))

	entries := h.entries(t, receipt.ID)
	assert.Len(t, entries, 9)
	assert.True(t, ledgerdomain.Total(entries, ledgerdomain.KindSales).Equal(dec("60000")))
	assert.True(t, ledgerdomain.Total(entries, ledgerdomain.KindCommission).Equal(dec("1200")))
}

func TestRetryOfOlderRevisionDoesNotUndoNewerOne(t *testing.T) {
	h := newHarness(t)
	slip := h.slip(t)
	lagging := h.receipt(t, slip.ID, 1000, true)
	_ = h.receipt(t, slip.ID, 500, true)

	h.ledger.failFor[lagging.ID] = true
	older, err := h.svc.RecalculateOrderSlip(h.ctx, slip.ID, dec("55"), "first notice")
	require.NoError(t, err)
	require.Len(t, older.Failed(), 1)
	delete(h.ledger.failFor, lagging.ID)

	newer, err := h.svc.RecalculateOrderSlip(h.ctx, slip.ID, dec("60"), "second notice")
	require.NoError(t, err)
	require.True(t, newer.Complete())
	assert.True(t, newer.Items[0].Adjustment.PriceDelta.Equal(dec("10")))
	assert.True(t, newer.Items[1].Adjustment.PriceDelta.Equal(dec("5")))

	retried, err := h.svc.Retry(h.ctx, older.Revision.ID)
	require.NoError(t, err)
	require.Len(t, retried.Items, 1)
	item := retried.Items[0]
	assert.Equal(t, lagging.ID, item.ReceiptID)
	assert.Equal(t, domain.OutcomeSuperseded, item.Outcome)
	require.NotNil(t, item.Adjustment)
	require.NotNil(t, item.Adjustment.SupersededBy)
	assert.Equal(t, newer.Revision.ID, *item.Adjustment.SupersededBy)
	assert.True(t, item.Adjustment.PriceDelta.IsZero())
	assert.True(t, retried.Complete())

	entries := h.entries(t, lagging.ID)
	assert.Len(t, entries, 6)
	assert.True(t, ledgerdomain.Total(entries, ledgerdomain.KindSales).Equal(dec("60000")))

	pending, err := h.svc.Pending(h.ctx, older.Revision.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// the receipt still reads the newer price
	again, err := h.svc.RecalculateReceipt(h.ctx, lagging.ID, dec("60"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, again.Items[0].Outcome)
}

func TestComputeDelta(t *testing.T) {
	delta := domain.ComputeDelta(dec("50"), dec("55"), dec("1000"), dec("0.02"), dec("0.01"))
	assert.True(t, delta.PriceDelta.Equal(dec("5")))
	assert.True(t, delta.Sales.Equal(dec("5000")))
	assert.True(t, delta.Commission.Equal(dec("100")))
	assert.True(t, delta.Freight.Equal(dec("50")))

	down := domain.ComputeDelta(dec("55"), dec("52.5"), dec("10"), dec("0.02"), dec("0"))
	assert.True(t, down.Commission.Equal(dec("-0.5")))
	assert.True(t, down.Freight.IsZero())
}
