package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/hirelens/hirelens/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name         string   `json:"name" binding:"required"`
	SupportEmail string   `json:"support_email"`
	EmailDomains []string `json:"email_domains"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), orgdomain.CreateOrganizationRequest{
		Name:         req.Name,
		SupportEmail: req.SupportEmail,
		EmailDomains: req.EmailDomains,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListOrganizations(c *gin.Context) {
	rows, err := s.organizationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organizations": rows})
}

func (s *Server) GetOrganization(c *gin.Context) {
	resp, err := s.organizationSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
