package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
	"gorm.io/gorm"
)

type Repository interface {
	// Replace removes every entitlement row for the org and inserts the new
	// set in the same statement scope. Callers run it inside a transaction.
	Replace(ctx context.Context, db *gorm.DB, orgID snowflake.ID, rows []Entitlement) error
	FindByFeature(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey) (*Entitlement, error)
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Entitlement, error)
	CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
}
