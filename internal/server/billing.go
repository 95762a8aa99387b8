package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hirelens/hirelens/internal/observability/logger"
	"go.uber.org/zap"
)

type billingConversionRequest struct {
	OrgID      string `json:"org_id" binding:"required"`
	BillingRef string `json:"billing_ref" binding:"required"`
}

// HandleBillingConversion is the only entry point the billing provider calls
// into this subsystem. Deliveries are serialized per org and safe to replay.
func (s *Server) HandleBillingConversion(c *gin.Context) {
	var req billingConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID, err := snowflake.ParseString(strings.TrimSpace(req.OrgID))
	if err != nil || orgID == 0 {
		AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization id"))
		return
	}

	ctx := c.Request.Context()
	if s.gateLimiter.Enabled() {
		token, locked, err := s.gateLimiter.TryLockConversion(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("conversion lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !locked {
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}
		defer func() {
			if err := s.gateLimiter.ReleaseConversion(ctx, orgID.String(), token); err != nil {
				logger.FromContext(ctx).Warn("conversion unlock failed", zap.Error(err))
			}
		}()
	}

	current, err := s.lifecycleSvc.ConvertToPaid(ctx, orgID, strings.TrimSpace(req.BillingRef))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lifecycleResponse(current))
}
