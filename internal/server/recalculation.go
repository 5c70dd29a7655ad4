package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	recalculationdomain "github.com/smallbiznis/fuelledger/internal/recalculation/domain"
)

type priceRevisionRequest struct {
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Reason    string           `json:"reason"`
}

type itemResultResponse struct {
	ReceiptID     snowflake.ID                           `json:"receipt_id"`
	ControlNumber string                                 `json:"control_number"`
	Outcome       recalculationdomain.Outcome            `json:"outcome"`
	Adjustment    *recalculationdomain.ReceiptAdjustment `json:"adjustment,omitempty"`
	Error         string                                 `json:"error,omitempty"`
}

type batchResultResponse struct {
	Revision recalculationdomain.PriceRevision `json:"revision"`
	Items    []itemResultResponse              `json:"items"`
	Complete bool                              `json:"complete"`
}

func newBatchResultResponse(result recalculationdomain.BatchResult) batchResultResponse {
	items := make([]itemResultResponse, 0, len(result.Items))
	for _, item := range result.Items {
		resp := itemResultResponse{
			ReceiptID:     item.ReceiptID,
			ControlNumber: item.ControlNumber,
			Outcome:       item.Outcome,
			Adjustment:    item.Adjustment,
		}
		if item.Err != nil {
			resp.Error = item.Err.Error()
		}
		items = append(items, resp)
	}
	return batchResultResponse{
		Revision: result.Revision,
		Items:    items,
		Complete: result.Complete(),
	}
}

// batchStatus reports partial batches as 207 so callers notice failed items.
func batchStatus(result recalculationdomain.BatchResult) int {
	if result.Complete() {
		return http.StatusOK
	}
	return http.StatusMultiStatus
}

func bindPriceRevision(c *gin.Context) (priceRevisionRequest, bool) {
	var req priceRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return req, false
	}
	if req.UnitPrice == nil {
		AbortWithError(c, newValidationError("unit_price", "required", "unit_price is required"))
		return req, false
	}
	return req, true
}

func (s *Server) RecalculateOrderSlip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, ok := bindPriceRevision(c)
	if !ok {
		return
	}
	result, err := s.recalculation.RecalculateOrderSlip(c.Request.Context(), id, *req.UnitPrice, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(batchStatus(result), gin.H{"data": newBatchResultResponse(result)})
}

func (s *Server) RecalculateReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, ok := bindPriceRevision(c)
	if !ok {
		return
	}
	result, err := s.recalculation.RecalculateReceipt(c.Request.Context(), id, *req.UnitPrice, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(batchStatus(result), gin.H{"data": newBatchResultResponse(result)})
}

func (s *Server) ListPendingReceipts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.recalculation.Pending(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetryRevision(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := s.recalculation.Retry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(batchStatus(result), gin.H{"data": newBatchResultResponse(result)})
}

func (s *Server) ListReceiptAdjustments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.recalculation.ListAdjustments(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
