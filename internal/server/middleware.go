package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/internal/companycontext"
)

const (
	HeaderCompany = "X-Company-ID"
	HeaderRole    = "X-Role"
)

// CompanyContext scopes the request to the company named by X-Company-ID.
func CompanyContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderCompany))
		companyID, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || companyID == 0 {
			AbortWithError(c, newValidationError("company_id", "invalid_company", "X-Company-ID header is required"))
			return
		}
		ctx := companycontext.WithCompanyID(c.Request.Context(), companyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeRequest(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeRequest checks the caller's X-Role for handlers whose action
// depends on the request body.
func (s *Server) authorizeRequest(c *gin.Context, object, action string) error {
	if s.authz == nil {
		return nil
	}
	return s.authz.Authorize(c.Request.Context(), c.GetHeader(HeaderRole), object, action)
}
