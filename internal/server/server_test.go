package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/authorization"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	placementdomain "github.com/smallbiznis/fuelledger/internal/placement/domain"
	recalculationdomain "github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"github.com/smallbiznis/fuelledger/pkg/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	engine        *gin.Engine
	orderSlips    *mockOrderSlips
	receipts      *mockReceipts
	recalculation *mockRecalculation
	placements    *mockPlacements
}

func newHarness(t *testing.T, authz authorization.Service) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		engine:        gin.New(),
		orderSlips:    &mockOrderSlips{},
		receipts:      &mockReceipts{},
		recalculation: &mockRecalculation{},
		placements:    &mockPlacements{},
	}
	h.engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(Params{
		Engine:        h.engine,
		Log:           zap.NewNop(),
		OrderSlips:    h.orderSlips,
		Receipts:      h.receipts,
		Recalculation: h.recalculation,
		Placements:    h.placements,
		Authz:         authz,
	})
	srv.RegisterAPIRoutes()

	t.Cleanup(func() {
		h.orderSlips.AssertExpectations(t)
		h.receipts.AssertExpectations(t)
		h.recalculation.AssertExpectations(t)
		h.placements.AssertExpectations(t)
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func companyHeaders() map[string]string {
	return map[string]string{HeaderCompany: "7"}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func inCompany(id snowflake.ID) any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		got, ok := companycontext.CompanyIDFromContext(ctx)
		return ok && got == id
	})
}

func TestCompanyHeaderRequired(t *testing.T) {
	h := newHarness(t, nil)

	for _, value := range []string{"", "abc", "0"} {
		headers := map[string]string{}
		if value != "" {
			headers[HeaderCompany] = value
		}
		rec := h.do(t, http.MethodGet, "/api/v1/order-slips", nil, headers)
		require.Equal(t, http.StatusBadRequest, rec.Code, "header %q", value)

		payload := decodeError(t, rec)
		assert.Equal(t, "validation_error", payload.Type)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "invalid_company", payload.Errors[0].Code)
	}
}

func TestCreateOrderSlip(t *testing.T) {
	h := newHarness(t, nil)

	expected := orderslipdomain.CreateRequest{
		CustomerID:     42,
		ProductCode:    "DSL",
		OrderedVolume:  decimal.NewFromInt(10000),
		UnitPrice:      decimal.RequireFromString("55.25"),
		CommissionRate: decimal.RequireFromString("0.5"),
		FreightRate:    decimal.RequireFromString("1.25"),
		ReceiptCap:     3,
	}
	h.orderSlips.On("Create", inCompany(7), mock.MatchedBy(func(req orderslipdomain.CreateRequest) bool {
		return req.CustomerID == expected.CustomerID &&
			req.ProductCode == expected.ProductCode &&
			req.OrderedVolume.Equal(expected.OrderedVolume) &&
			req.UnitPrice.Equal(expected.UnitPrice) &&
			req.ReceiptCap == expected.ReceiptCap
	})).Return(orderslipdomain.OrderSlip{ID: 1001, Status: orderslipdomain.StatusCreated}, nil).Once()

	rec := h.do(t, http.MethodPost, "/api/v1/order-slips", map[string]any{
		"customer_id":     "42",
		"product_code":    "  DSL ",
		"ordered_volume":  "10000",
		"unit_price":      "55.25",
		"commission_rate": "0.5",
		"freight_rate":    "1.25",
		"receipt_cap":     3,
	}, companyHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(orderslipdomain.StatusCreated), resp.Data.Status)
}

func TestCreateOrderSlipRejectsMalformedBody(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/order-slips", bytes.NewBufferString("{"))
	req.Header.Set(HeaderCompany, "7")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
	h.orderSlips.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		errType  string
		errField string
	}{
		{
			name:    "invalid transition",
			err:     &fsm.TransitionError{Machine: "delivery_receipt", From: "voided", To: "invoiced"},
			status:  http.StatusConflict,
			errType: "invalid_transition",
		},
		{
			name:    "insufficient budget",
			err:     fmt.Errorf("reserve: %w", volumedomain.ErrInsufficientBudget),
			status:  http.StatusUnprocessableEntity,
			errType: "insufficient_budget",
		},
		{
			name:    "not found",
			err:     receiptdomain.ErrNotFound,
			status:  http.StatusNotFound,
			errType: "not_found",
		},
		{
			name:     "invalid volume",
			err:      receiptdomain.ErrInvalidVolume,
			status:   http.StatusBadRequest,
			errType:  "validation_error",
			errField: "volume",
		},
		{
			name:    "unexpected",
			err:     errors.New("connection reset"),
			status:  http.StatusInternalServerError,
			errType: "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.receipts.On("Transition", inCompany(7), snowflake.ID(55), mock.MatchedBy(func(req receiptdomain.TransitionRequest) bool {
				return req.Target == receiptdomain.StatusInvoiced
			})).Return(receiptdomain.DeliveryReceipt{}, tc.err).Once()

			rec := h.do(t, http.MethodPost, "/api/v1/delivery-receipts/55/transitions", map[string]any{
				"target": "invoiced",
			}, companyHeaders())
			require.Equal(t, tc.status, rec.Code, rec.Body.String())

			payload := decodeError(t, rec)
			assert.Equal(t, tc.errType, payload.Type)
			if tc.errField != "" {
				require.Len(t, payload.Errors, 1)
				assert.Equal(t, tc.errField, payload.Errors[0].Field)
			}
		})
	}
}

func TestReceiptTransitionUnknownTarget(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/delivery-receipts/55/transitions", map[string]any{
		"target": "shipped",
	}, companyHeaders())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_target", payload.Errors[0].Code)
}

func TestReceiptTransitionAuthorizedByTarget(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", mock.Anything, "clerk", authorization.ObjectDeliveryReceipt, authorization.ActionReceiptInvoice).
		Return(authorization.ErrForbidden).Once()
	authz.On("Authorize", mock.Anything, "clerk", authorization.ObjectDeliveryReceipt, authorization.ActionReceiptApprove).
		Return(nil).Once()
	t.Cleanup(func() { authz.AssertExpectations(t) })

	h := newHarness(t, authz)
	headers := map[string]string{HeaderCompany: "7", HeaderRole: "clerk"}

	rec := h.do(t, http.MethodPost, "/api/v1/delivery-receipts/55/transitions", map[string]any{
		"target": "invoiced",
	}, headers)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
	h.receipts.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)

	h.receipts.On("Transition", mock.Anything, snowflake.ID(55), mock.Anything).
		Return(receiptdomain.DeliveryReceipt{ID: 55, Status: receiptdomain.StatusPendingDelivery}, nil).Once()
	rec = h.do(t, http.MethodPost, "/api/v1/delivery-receipts/55/transitions", map[string]any{
		"target": "pending_delivery",
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUnknownRoleIsUnauthorized(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", mock.Anything, "", authorization.ObjectPlacement, authorization.ActionPlacementView).
		Return(authorization.ErrInvalidRole).Once()
	t.Cleanup(func() { authz.AssertExpectations(t) })

	h := newHarness(t, authz)
	rec := h.do(t, http.MethodGet, "/api/v1/placements/9", nil, companyHeaders())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	h.placements.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestPathIDValidation(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/placements/not-a-number", nil, companyHeaders())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	h.placements.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestPlacementRuleErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.placements.On("Withdraw", inCompany(7), snowflake.ID(9)).
		Return(placementdomain.Placement{}, placementdomain.ErrNotMatured).Once()

	rec := h.do(t, http.MethodPost, "/api/v1/placements/9/withdraw", nil, companyHeaders())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, placementdomain.ErrNotMatured.Error(), decodeError(t, rec).Type)
}

func TestRollOverWithoutBody(t *testing.T) {
	h := newHarness(t, nil)
	h.placements.On("RollOver", inCompany(7), snowflake.ID(9), placementdomain.RollOverRequest{}).
		Return(placementdomain.RollOverResult{}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/placements/9/rollover", nil)
	req.Header.Set(HeaderCompany, "7")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPriceRevisionPartialBatch(t *testing.T) {
	h := newHarness(t, nil)
	price := decimal.RequireFromString("57.10")
	h.recalculation.On("RecalculateOrderSlip", inCompany(7), snowflake.ID(3), mock.MatchedBy(func(p decimal.Decimal) bool {
		return p.Equal(price)
	}), "supplier increase").Return(recalculationdomain.BatchResult{
		Items: []recalculationdomain.ItemResult{
			{ReceiptID: 1, Outcome: recalculationdomain.OutcomeApplied},
			{ReceiptID: 2, Outcome: recalculationdomain.OutcomeFailed, Err: errors.New("lock timeout")},
		},
	}, nil).Once()

	rec := h.do(t, http.MethodPost, "/api/v1/order-slips/3/price-revisions", map[string]any{
		"unit_price": "57.10",
		"reason":     "supplier increase",
	}, companyHeaders())
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())

	var resp struct {
		Data batchResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Complete)
	require.Len(t, resp.Data.Items, 2)
	assert.Empty(t, resp.Data.Items[0].Error)
	assert.Equal(t, "lock timeout", resp.Data.Items[1].Error)
}

func TestPriceRevisionRequiresUnitPrice(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/delivery-receipts/3/price-revisions", map[string]any{
		"reason": "typo",
	}, companyHeaders())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "unit_price", payload.Errors[0].Field)
}
