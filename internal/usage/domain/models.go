// Package domain contains persistence models for daily usage counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
)

// DayFormat keys counters by UTC calendar day. Counters never reset in
// place; a new day simply starts a new row.
const DayFormat = "2006-01-02"

// DayKey renders t as a counter day key. The instant is normalized to UTC
// first so tenants in every timezone share one rollover boundary.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// UsageCounter tracks consumed units for one org, feature and day. Used only
// ever grows; the quota check and the increment happen in one conditional
// statement so concurrent consumers cannot overshoot the limit.
type UsageCounter struct {
	OrgID      snowflake.ID    `gorm:"primaryKey;column:org_id"`
	FeatureKey plan.FeatureKey `gorm:"primaryKey;column:feature_key;type:text"`
	Day        string          `gorm:"primaryKey;column:day;type:text"`
	Used       int64           `gorm:"not null;default:0"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageCounter) TableName() string { return "usage_counters" }
