package domain

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	List(ctx context.Context) ([]OrganizationResponse, error)
}

type CreateOrganizationRequest struct {
	Name         string
	SupportEmail string
	EmailDomains []string
}

type OrganizationResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	SupportEmail string         `json:"support_email,omitempty"`
	EmailDomains pq.StringArray `json:"email_domains,omitempty"`
	Status       string         `json:"status,omitempty"`
	Tier         string         `json:"tier,omitempty"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrSlugTaken            = errors.New("slug_taken")
)
