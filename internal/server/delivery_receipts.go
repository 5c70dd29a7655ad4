package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/authorization"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
)

type createDeliveryReceiptRequest struct {
	OrderSlipID  snowflake.ID    `json:"order_slip_id"`
	Volume       decimal.Decimal `json:"volume"`
	ManualNumber string          `json:"manual_number"`
}

type transitionDeliveryReceiptRequest struct {
	Target      string     `json:"target"`
	Reason      string     `json:"reason"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// receiptActions names the permission needed to move a receipt into each state.
var receiptActions = map[receiptdomain.Status]string{
	receiptdomain.StatusPendingDelivery: authorization.ActionReceiptApprove,
	receiptdomain.StatusForInvoicing:    authorization.ActionReceiptDeliver,
	receiptdomain.StatusInvoiced:        authorization.ActionReceiptInvoice,
	receiptdomain.StatusCanceled:        authorization.ActionReceiptCancel,
	receiptdomain.StatusVoided:          authorization.ActionReceiptVoid,
}

func (s *Server) CreateDeliveryReceipt(c *gin.Context) {
	var req createDeliveryReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.receipts.Create(c.Request.Context(), receiptdomain.CreateRequest{
		OrderSlipID:  req.OrderSlipID,
		Volume:       req.Volume,
		ManualNumber: req.ManualNumber,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListDeliveryReceipts(c *gin.Context) {
	slipID, err := parseOptionalSnowflakeID(c.Query("order_slip_id"))
	if err != nil {
		AbortWithError(c, newValidationError("order_slip_id", "invalid_order_slip_id", "invalid order_slip_id"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	filter := receiptdomain.ListFilter{
		Status: receiptdomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
	}
	if slipID != nil {
		filter.OrderSlipID = *slipID
	}
	resp, err := s.receipts.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDeliveryReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.receipts.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TransitionDeliveryReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionDeliveryReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	target := receiptdomain.Status(strings.TrimSpace(req.Target))
	action, known := receiptActions[target]
	if !known {
		AbortWithError(c, newValidationError("target", "invalid_target", "unknown target status"))
		return
	}
	if err := s.authorizeRequest(c, authorization.ObjectDeliveryReceipt, action); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.receipts.Transition(c.Request.Context(), id, receiptdomain.TransitionRequest{
		Target:      target,
		Reason:      req.Reason,
		DeliveredAt: req.DeliveredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteDeliveryReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.receipts.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListReceiptLedgerEntries(c *gin.Context) {
	s.listLedgerEntries(c, ledgerdomain.SourceDeliveryReceipt)
}

func (s *Server) ListPlacementLedgerEntries(c *gin.Context) {
	s.listLedgerEntries(c, ledgerdomain.SourcePlacement)
}

func (s *Server) listLedgerEntries(c *gin.Context, source ledgerdomain.SourceType) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	companyID, _ := companycontext.CompanyIDFromContext(c.Request.Context())
	entries, err := s.ledger.ListBySource(c.Request.Context(), companyID, source, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
