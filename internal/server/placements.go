package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	placementdomain "github.com/smallbiznis/fuelledger/internal/placement/domain"
)

type createPlacementRequest struct {
	BankName      string          `json:"bank_name"`
	AccountNumber string          `json:"account_number"`
	PlacementType string          `json:"placement_type"`
	Principal     decimal.Decimal `json:"principal"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	FromDate      time.Time       `json:"from_date"`
	ToDate        time.Time       `json:"to_date"`
	HasEWT        bool            `json:"has_ewt"`
	EWTRate       decimal.Decimal `json:"ewt_rate"`
	HasTrustFee   bool            `json:"has_trust_fee"`
	TrustFeeRate  decimal.Decimal `json:"trust_fee_rate"`
	BatchNumber   string          `json:"batch_number"`
}

type updatePlacementTermsRequest struct {
	Principal    *decimal.Decimal `json:"principal"`
	InterestRate *decimal.Decimal `json:"interest_rate"`
	FromDate     *time.Time       `json:"from_date"`
	ToDate       *time.Time       `json:"to_date"`
	HasEWT       *bool            `json:"has_ewt"`
	EWTRate      *decimal.Decimal `json:"ewt_rate"`
	HasTrustFee  *bool            `json:"has_trust_fee"`
	TrustFeeRate *decimal.Decimal `json:"trust_fee_rate"`
}

type rollOverPlacementRequest struct {
	Amount        *decimal.Decimal `json:"amount"`
	BankName      string           `json:"bank_name"`
	AccountNumber string           `json:"account_number"`
	InterestRate  *decimal.Decimal `json:"interest_rate"`
	TermDays      int              `json:"term_days"`
}

type swapPlacementRequest struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	Reason        string `json:"reason"`
}

func (s *Server) CreatePlacement(c *gin.Context) {
	var req createPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.placements.Create(c.Request.Context(), placementdomain.CreateRequest{
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		PlacementType: req.PlacementType,
		Principal:     req.Principal,
		InterestRate:  req.InterestRate,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
		HasEWT:        req.HasEWT,
		EWTRate:       req.EWTRate,
		HasTrustFee:   req.HasTrustFee,
		TrustFeeRate:  req.TrustFeeRate,
		BatchNumber:   req.BatchNumber,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPlacement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.placements.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePlacementTerms(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updatePlacementTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.placements.UpdateTerms(c.Request.Context(), id, placementdomain.TermsUpdate{
		Principal:    req.Principal,
		InterestRate: req.InterestRate,
		FromDate:     req.FromDate,
		ToDate:       req.ToDate,
		HasEWT:       req.HasEWT,
		EWTRate:      req.EWTRate,
		HasTrustFee:  req.HasTrustFee,
		TrustFeeRate: req.TrustFeeRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PostPlacement(c *gin.Context) {
	s.placementAction(c, s.placements.Post)
}

func (s *Server) LockPlacement(c *gin.Context) {
	s.placementAction(c, s.placements.Lock)
}

func (s *Server) WithdrawPlacement(c *gin.Context) {
	s.placementAction(c, s.placements.Withdraw)
}

func (s *Server) RollOverPlacement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rollOverPlacementRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.placements.RollOver(c.Request.Context(), id, placementdomain.RollOverRequest{
		Amount:        req.Amount,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		InterestRate:  req.InterestRate,
		TermDays:      req.TermDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SwapPlacement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req swapPlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.placements.Swap(c.Request.Context(), id, placementdomain.SwapRequest{
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Reason:        req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlacementSwaps(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := s.placements.ListSwaps(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlacementBatch(c *gin.Context) {
	batch := strings.TrimSpace(c.Param("batch_number"))
	resp, err := s.placements.ListBatch(c.Request.Context(), batch)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) placementAction(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (placementdomain.Placement, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
