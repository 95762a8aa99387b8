package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
)

func (s *Server) StartTrial(c *gin.Context) {
	orgID, err := parseOrgParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	current, err := s.lifecycleSvc.StartTrial(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lifecycleResponse(current))
}

func (s *Server) StartPilot(c *gin.Context) {
	orgID, err := parseOrgParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	current, err := s.lifecycleSvc.StartPilot(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lifecycleResponse(current))
}

// GetLifecycle answers with the current record, applying any due expiry
// on the way.
func (s *Server) GetLifecycle(c *gin.Context) {
	resp, err := s.lifecycleSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetLifecycleHistory(c *gin.Context) {
	rows, err := s.lifecycleSvc.History(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transitions": rows})
}

func parseOrgParam(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		return 0, ErrOrgRequired
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil || orgID == 0 {
		return 0, newValidationError("org_id", "invalid_organization", "invalid organization id")
	}
	return orgID, nil
}

func lifecycleResponse(current *lifecycledomain.Lifecycle) lifecycledomain.Response {
	return lifecycledomain.Response{
		OrgID:       current.OrgID.String(),
		Tier:        string(current.Tier),
		Status:      string(current.Status),
		TrialStart:  current.TrialStart,
		TrialEnd:    current.TrialEnd,
		PilotStart:  current.PilotStart,
		PilotEnd:    current.PilotEnd,
		ConvertedAt: current.ConvertedAt,
	}
}
