package server

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	placementdomain "github.com/smallbiznis/fuelledger/internal/placement/domain"
	recalculationdomain "github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	"github.com/stretchr/testify/mock"
)

type mockOrderSlips struct{ mock.Mock }

func (m *mockOrderSlips) Create(ctx context.Context, req orderslipdomain.CreateRequest) (orderslipdomain.OrderSlip, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(orderslipdomain.OrderSlip), args.Error(1)
}

func (m *mockOrderSlips) Get(ctx context.Context, id snowflake.ID) (orderslipdomain.OrderSlip, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(orderslipdomain.OrderSlip), args.Error(1)
}

func (m *mockOrderSlips) List(ctx context.Context, filter orderslipdomain.ListFilter) ([]orderslipdomain.OrderSlip, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]orderslipdomain.OrderSlip), args.Error(1)
}

func (m *mockOrderSlips) Transition(ctx context.Context, id snowflake.ID, req orderslipdomain.TransitionRequest) (orderslipdomain.OrderSlip, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(orderslipdomain.OrderSlip), args.Error(1)
}

func (m *mockOrderSlips) AvailableTransitions(ctx context.Context, id snowflake.ID) ([]orderslipdomain.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]orderslipdomain.Status), args.Error(1)
}

type mockReceipts struct{ mock.Mock }

func (m *mockReceipts) Create(ctx context.Context, req receiptdomain.CreateRequest) (receiptdomain.DeliveryReceipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(receiptdomain.DeliveryReceipt), args.Error(1)
}

func (m *mockReceipts) Get(ctx context.Context, id snowflake.ID) (receiptdomain.DeliveryReceipt, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(receiptdomain.DeliveryReceipt), args.Error(1)
}

func (m *mockReceipts) List(ctx context.Context, filter receiptdomain.ListFilter) ([]receiptdomain.DeliveryReceipt, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]receiptdomain.DeliveryReceipt), args.Error(1)
}

func (m *mockReceipts) Transition(ctx context.Context, id snowflake.ID, req receiptdomain.TransitionRequest) (receiptdomain.DeliveryReceipt, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(receiptdomain.DeliveryReceipt), args.Error(1)
}

func (m *mockReceipts) Delete(ctx context.Context, id snowflake.ID) error {
	return m.Called(ctx, id).Error(0)
}

type mockRecalculation struct{ mock.Mock }

func (m *mockRecalculation) RecalculateReceipt(ctx context.Context, receiptID snowflake.ID, price decimal.Decimal, reason string) (recalculationdomain.BatchResult, error) {
	args := m.Called(ctx, receiptID, price, reason)
	return args.Get(0).(recalculationdomain.BatchResult), args.Error(1)
}

func (m *mockRecalculation) RecalculateOrderSlip(ctx context.Context, slipID snowflake.ID, price decimal.Decimal, reason string) (recalculationdomain.BatchResult, error) {
	args := m.Called(ctx, slipID, price, reason)
	return args.Get(0).(recalculationdomain.BatchResult), args.Error(1)
}

func (m *mockRecalculation) Pending(ctx context.Context, revisionID snowflake.ID) ([]receiptdomain.DeliveryReceipt, error) {
	args := m.Called(ctx, revisionID)
	return args.Get(0).([]receiptdomain.DeliveryReceipt), args.Error(1)
}

func (m *mockRecalculation) Retry(ctx context.Context, revisionID snowflake.ID) (recalculationdomain.BatchResult, error) {
	args := m.Called(ctx, revisionID)
	return args.Get(0).(recalculationdomain.BatchResult), args.Error(1)
}

func (m *mockRecalculation) ListAdjustments(ctx context.Context, receiptID snowflake.ID) ([]recalculationdomain.ReceiptAdjustment, error) {
	args := m.Called(ctx, receiptID)
	return args.Get(0).([]recalculationdomain.ReceiptAdjustment), args.Error(1)
}

type mockPlacements struct{ mock.Mock }

func (m *mockPlacements) Create(ctx context.Context, req placementdomain.CreateRequest) (placementdomain.Placement, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) Get(ctx context.Context, id snowflake.ID) (placementdomain.Placement, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) ListBatch(ctx context.Context, batchNumber string) ([]placementdomain.Placement, error) {
	args := m.Called(ctx, batchNumber)
	return args.Get(0).([]placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) ListSwaps(ctx context.Context, id snowflake.ID) ([]placementdomain.PlacementSwap, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]placementdomain.PlacementSwap), args.Error(1)
}

func (m *mockPlacements) UpdateTerms(ctx context.Context, id snowflake.ID, update placementdomain.TermsUpdate) (placementdomain.Placement, error) {
	args := m.Called(ctx, id, update)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) Post(ctx context.Context, id snowflake.ID) (placementdomain.Placement, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) Lock(ctx context.Context, id snowflake.ID) (placementdomain.Placement, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) Withdraw(ctx context.Context, id snowflake.ID) (placementdomain.Placement, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

func (m *mockPlacements) RollOver(ctx context.Context, id snowflake.ID, req placementdomain.RollOverRequest) (placementdomain.RollOverResult, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(placementdomain.RollOverResult), args.Error(1)
}

func (m *mockPlacements) Swap(ctx context.Context, id snowflake.ID, req placementdomain.SwapRequest) (placementdomain.Placement, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(placementdomain.Placement), args.Error(1)
}

type mockAuthz struct{ mock.Mock }

func (m *mockAuthz) Authorize(ctx context.Context, role, object, action string) error {
	return m.Called(ctx, role, object, action).Error(0)
}
