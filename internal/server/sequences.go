package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
)

type sequencePreviewResponse struct {
	DocumentType string    `json:"document_type"`
	Period       string    `json:"period"`
	Seq          int64     `json:"seq"`
	Number       string    `json:"number"`
	At           time.Time `json:"at"`
}

// PreviewSequence shows the control number the next document would receive.
// Nothing is reserved.
func (s *Server) PreviewSequence(c *gin.Context) {
	documentType := sequencedomain.DocumentType(strings.TrimSpace(c.Param("document_type")))
	companyID, _ := companycontext.CompanyIDFromContext(c.Request.Context())

	at := time.Now().UTC()
	if raw := strings.TrimSpace(c.Query("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("at", "invalid_at", "at must be RFC3339"))
			return
		}
		at = parsed.UTC()
	}

	issued, err := s.sequence.Next(c.Request.Context(), companyID, documentType, at)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sequencePreviewResponse{
		DocumentType: string(issued.DocumentType),
		Period:       issued.Period,
		Seq:          issued.Seq,
		Number:       issued.Number,
		At:           at,
	}})
}
