package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hirelens/hirelens/internal/orgcontext"
	"github.com/hirelens/hirelens/internal/plan"
	gatedomain "github.com/hirelens/hirelens/internal/quotagate/domain"
)

type gateCheckRequest struct {
	FeatureKey string `json:"feature_key" binding:"required"`
}

// GateCheck is the decision point feature handlers call before doing paid
// work. An Allow consumes one quota unit; every denial carries the reason
// and, for quota denials, the limit that was hit.
func (s *Server) GateCheck(c *gin.Context) {
	var req gateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	feature, err := plan.ParseFeatureKey(strings.TrimSpace(req.FeatureKey))
	if err != nil {
		AbortWithError(c, newValidationError("feature_key", "invalid_feature", "unknown feature key"))
		return
	}
	c.Set("feature_key", string(feature))

	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		AbortWithError(c, ErrOrgRequired)
		return
	}

	verdict, err := s.gateSvc.Check(ctx, orgID, feature)
	if err != nil {
		// Unknown outcome reads as deny. 503 tells the caller to back off
		// without burning quota.
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.JSON(verdictStatus(verdict), verdict)
}

// verdictStatus maps denial reasons onto the statuses feature callers key
// off: 429 for exhausted quota, 402 for a lifecycle that needs payment, 403
// for a feature the plan does not include.
func verdictStatus(verdict gatedomain.Verdict) int {
	if verdict.Allowed {
		return http.StatusOK
	}
	switch verdict.Reason {
	case gatedomain.ReasonQuotaExceeded:
		return http.StatusTooManyRequests
	case gatedomain.ReasonLifecycleLocked:
		return http.StatusPaymentRequired
	case gatedomain.ReasonFeatureDisabled:
		return http.StatusForbidden
	default:
		return http.StatusForbidden
	}
}

func (s *Server) ListEntitlements(c *gin.Context) {
	rows, err := s.entitlementSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entitlements": rows})
}

func (s *Server) ListUsage(c *gin.Context) {
	rows, err := s.usageSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"usage": rows})
}

type purgeUsageRequest struct {
	RetentionDays int `json:"retention_days" binding:"required,min=1"`
}

// PurgeUsage drops counter rows older than the retention window. Admission
// only ever reads the current day, so this is purely a storage sweep.
func (s *Server) PurgeUsage(c *gin.Context) {
	var req purgeUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cutoff := s.clock.Now().AddDate(0, 0, -req.RetentionDays)
	removed, err := s.usageSvc.PurgeBefore(c.Request.Context(), cutoff)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
