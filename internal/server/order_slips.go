package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
)

type createOrderSlipRequest struct {
	CustomerID     snowflake.ID    `json:"customer_id"`
	ProductCode    string          `json:"product_code"`
	OrderedVolume  decimal.Decimal `json:"ordered_volume"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	FreightRate    decimal.Decimal `json:"freight_rate"`
	ReceiptCap     int             `json:"receipt_cap"`
	ExpiresAt      *time.Time      `json:"expires_at"`
}

type transitionOrderSlipRequest struct {
	Target     string        `json:"target"`
	SupplierID *snowflake.ID `json:"supplier_id"`
	HaulerID   *snowflake.ID `json:"hauler_id"`
	Reason     string        `json:"reason"`
}

type volumeRequest struct {
	Volume decimal.Decimal `json:"volume"`
}

func (s *Server) CreateOrderSlip(c *gin.Context) {
	var req createOrderSlipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSlips.Create(c.Request.Context(), orderslipdomain.CreateRequest{
		CustomerID:     req.CustomerID,
		ProductCode:    strings.TrimSpace(req.ProductCode),
		OrderedVolume:  req.OrderedVolume,
		UnitPrice:      req.UnitPrice,
		CommissionRate: req.CommissionRate,
		FreightRate:    req.FreightRate,
		ReceiptCap:     req.ReceiptCap,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListOrderSlips(c *gin.Context) {
	customerID, err := parseOptionalSnowflakeID(c.Query("customer_id"))
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer_id"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	filter := orderslipdomain.ListFilter{
		Status: orderslipdomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
	}
	if customerID != nil {
		filter.CustomerID = *customerID
	}
	resp, err := s.orderSlips.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrderSlip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.orderSlips.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOrderSlipTransitions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.orderSlips.AvailableTransitions(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TransitionOrderSlip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionOrderSlipRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Target) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSlips.Transition(c.Request.Context(), id, orderslipdomain.TransitionRequest{
		Target:     orderslipdomain.Status(strings.TrimSpace(req.Target)),
		SupplierID: req.SupplierID,
		HaulerID:   req.HaulerID,
		Reason:     req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrderSlipBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.volume.Balance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CheckOrderSlipVolume previews whether a receipt of the given volume fits.
func (s *Server) CheckOrderSlipVolume(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.volume.Check(c.Request.Context(), id, req.Volume)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
