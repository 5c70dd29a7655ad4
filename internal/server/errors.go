package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/internal/authorization"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	placementdomain "github.com/smallbiznis/fuelledger/internal/placement/domain"
	recalculationdomain "github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"github.com/smallbiznis/fuelledger/pkg/fsm"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

var validationErrors = []error{
	ErrInvalidRequest,
	orderslipdomain.ErrInvalidCompany,
	orderslipdomain.ErrInvalidCustomer,
	orderslipdomain.ErrInvalidProduct,
	orderslipdomain.ErrInvalidVolume,
	orderslipdomain.ErrInvalidPrice,
	orderslipdomain.ErrInvalidRate,
	orderslipdomain.ErrInvalidReceiptCap,
	orderslipdomain.ErrSupplierRequired,
	orderslipdomain.ErrHaulerRequired,
	receiptdomain.ErrInvalidCompany,
	receiptdomain.ErrInvalidOrderSlip,
	receiptdomain.ErrInvalidVolume,
	volumedomain.ErrInvalidCompany,
	volumedomain.ErrInvalidVolume,
	recalculationdomain.ErrInvalidCompany,
	recalculationdomain.ErrInvalidPrice,
	placementdomain.ErrInvalidCompany,
	placementdomain.ErrInvalidBank,
	placementdomain.ErrInvalidAccount,
	placementdomain.ErrInvalidType,
	placementdomain.ErrInvalidPrincipal,
	placementdomain.ErrInvalidRate,
	placementdomain.ErrInvalidBasis,
	placementdomain.ErrInvalidTerm,
	placementdomain.ErrInvalidRollAmount,
	sequencedomain.ErrInvalidCompany,
	sequencedomain.ErrUnknownDocumentType,
	ledgerdomain.ErrInvalidCompany,
	ledgerdomain.ErrInvalidSource,
}

var notFoundErrors = []error{
	ErrNotFound,
	orderslipdomain.ErrNotFound,
	receiptdomain.ErrNotFound,
	volumedomain.ErrSlipNotFound,
	recalculationdomain.ErrReceiptNotFound,
	recalculationdomain.ErrSlipNotFound,
	recalculationdomain.ErrRevisionNotFound,
	placementdomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	fsm.ErrInvalidTransition,
	receiptdomain.ErrDuplicateManualNumber,
	sequencedomain.ErrConcurrencyExhausted,
	volumedomain.ErrAlreadyReleased,
}

// ruleErrors are well formed requests that the document's current state rejects.
var ruleErrors = []error{
	volumedomain.ErrInsufficientBudget,
	orderslipdomain.ErrNoOpenReceipts,
	orderslipdomain.ErrReceiptsIncomplete,
	orderslipdomain.ErrNotExpired,
	orderslipdomain.ErrOpenReceiptsRemain,
	orderslipdomain.ErrNotAcceptingReceipts,
	receiptdomain.ErrReceiptPosted,
	recalculationdomain.ErrReceiptNotPosted,
	placementdomain.ErrNotMatured,
	placementdomain.ErrMatured,
	placementdomain.ErrTermsFrozen,
	placementdomain.ErrInvalidSwap,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel, ok := match(err, validationErrors); ok {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidRole):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	}

	if sentinel, ok := match(err, notFoundErrors); ok {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: sentinel.Error(),
		}
	}
	if sentinel, ok := match(err, conflictErrors); ok {
		return http.StatusConflict, errorPayload{
			Type:    sentinel.Error(),
			Message: err.Error(),
		}
	}
	if sentinel, ok := match(err, ruleErrors); ok {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    sentinel.Error(),
			Message: err.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog returns the response type and code logged for a failed request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func match(err error, candidates []error) (error, bool) {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate, true
		}
	}
	return nil, false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
