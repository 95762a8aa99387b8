package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
	"gorm.io/gorm"
)

// Response is the wire representation of one entitlement row.
type Response struct {
	FeatureKey string    `json:"feature_key"`
	Enabled    bool      `json:"enabled"`
	QuotaLimit *int64    `json:"quota_limit,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Service materializes plan tiers into per-org entitlement rows and answers
// the gate's flag and quota lookups. Reads are fail-closed: no row means
// disabled.
type Service interface {
	// ApplyPlan resolves the tier and fully replaces the org's entitlement
	// row set in its own transaction.
	ApplyPlan(ctx context.Context, orgID snowflake.ID, tier plan.Tier) error
	// ApplyPlanTx is ApplyPlan inside a caller-owned transaction, so a
	// lifecycle transition and its entitlement update commit atomically.
	ApplyPlanTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, tier plan.Tier) error
	IsEnabled(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (bool, error)
	QuotaLimitFor(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (*int64, error)
	CountForOrg(ctx context.Context, orgID snowflake.ID) (int64, error)
	List(ctx context.Context) ([]Response, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidFeature      = errors.New("invalid_feature")
)
