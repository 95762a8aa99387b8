package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
	"gorm.io/gorm"
)

type Repository interface {
	// EnsureRow inserts the zero counter for the key if it does not exist.
	// Losing the insert race is fine; the row exists either way.
	EnsureRow(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string) error
	// IncrementIfBelow adds one unit only while used remains below limit.
	// Returns false when the row was already at or over the limit.
	IncrementIfBelow(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string, limit int64) (bool, error)
	// Increment adds one unit with no upper bound.
	Increment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string) error
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string) (*UsageCounter, error)
	ListByOrgAndDay(ctx context.Context, db *gorm.DB, orgID snowflake.ID, day string) ([]UsageCounter, error)
	// DeleteBefore removes counter rows whose day sorts before the cutoff
	// key and reports how many went away.
	DeleteBefore(ctx context.Context, db *gorm.DB, day string) (int64, error)
}
