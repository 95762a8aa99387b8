package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/hirelens/hirelens/internal/observability/context"
	"github.com/hirelens/hirelens/internal/observability/logger"
	"github.com/hirelens/hirelens/internal/orgcontext"
	"go.uber.org/zap"
)

const HeaderOrg = "X-Org-ID"

// OrgContext resolves the tenant from the X-Org-ID header and injects it
// into the request context. Tenant identity is always explicit; nothing in
// the engine falls back to an ambient default.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, ErrOrgRequired)
			return
		}
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization id"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set("org_id", orgID.String())
		c.Next()
	}
}

// GateRateLimit throttles gate checks per org ahead of any database work.
func (s *Server) GateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.gateLimiter == nil || !s.gateLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orgID, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}

		result, err := s.gateLimiter.AllowCheck(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("gate rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int64(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			s.obsMetrics.RecordRateLimitDenied(ctx, c.FullPath())
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
