// Package domain contains persistence models for materialized entitlements.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
)

// Entitlement is the materialized effect of the last-applied plan for one
// feature. Rows are only written through ApplyPlan; a full row set always
// covers every known feature key, disabled ones included.
type Entitlement struct {
	OrgID      snowflake.ID    `gorm:"primaryKey;column:org_id"`
	FeatureKey plan.FeatureKey `gorm:"primaryKey;column:feature_key;type:text"`
	Enabled    bool            `gorm:"not null"`
	QuotaLimit *int64          `gorm:""`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Entitlement) TableName() string { return "entitlements" }
