// Package domain contains the subscription lifecycle state machine types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
)

// Status is the tenant's position in the trial/pilot/paid machine.
type Status string

const (
	StatusNew              Status = "new"
	StatusTrialActive      Status = "trial_active"
	StatusTrialExpiredFree Status = "trial_expired_free"
	StatusPilotActive      Status = "pilot_active"
	StatusPilotLocked      Status = "pilot_locked"
	StatusPaidActive       Status = "paid_active"
)

// Locked reports whether the status denies non-free features outright.
func (s Status) Locked() bool {
	return s == StatusPilotLocked || s == StatusTrialExpiredFree
}

// Terminal reports whether automatic expiry no longer applies.
func (s Status) Terminal() bool { return s == StatusPaidActive }

// TierForStatus maps a lifecycle status to the plan tier it entitles.
func TierForStatus(s Status) (plan.Tier, error) {
	switch s {
	case StatusNew, StatusTrialExpiredFree, StatusPilotLocked:
		return plan.TierFree, nil
	case StatusTrialActive:
		return plan.TierTrial, nil
	case StatusPilotActive:
		return plan.TierGrowthPilot, nil
	case StatusPaidActive:
		return plan.TierPaidGrowth, nil
	}
	return "", ErrUnknownStatus
}

// TransitionReason records why a status change happened.
type TransitionReason string

const (
	ReasonTrialStarted TransitionReason = "trial_started"
	ReasonPilotStarted TransitionReason = "pilot_started"
	ReasonTrialExpired TransitionReason = "trial_expired"
	ReasonPilotExpired TransitionReason = "pilot_expired"
	ReasonConverted    TransitionReason = "converted_to_paid"
)

// Lifecycle is the single authoritative subscription record per org. A
// tenant is on exactly one path at a time; trial and pilot fields are only
// populated for the path the tenant actually entered.
type Lifecycle struct {
	OrgID       snowflake.ID `gorm:"primaryKey;column:org_id"`
	Tier        plan.Tier    `gorm:"column:tier;type:text;not null"`
	Status      Status       `gorm:"column:status;type:text;not null"`
	TrialStart  *time.Time   `gorm:"column:trial_start"`
	TrialEnd    *time.Time   `gorm:"column:trial_end"`
	PilotStart  *time.Time   `gorm:"column:pilot_start"`
	PilotEnd    *time.Time   `gorm:"column:pilot_end"`
	ConvertedAt *time.Time   `gorm:"column:converted_at"`
	BillingRef  *string      `gorm:"column:billing_ref"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Lifecycle) TableName() string { return "subscription_lifecycles" }

// Transition is an append-only history row, one per committed status change.
type Transition struct {
	ID         snowflake.ID     `gorm:"primaryKey;column:id"`
	OrgID      snowflake.ID     `gorm:"column:org_id;index;not null"`
	FromStatus Status           `gorm:"column:from_status;type:text;not null"`
	ToStatus   Status           `gorm:"column:to_status;type:text;not null"`
	Reason     TransitionReason `gorm:"column:reason;type:text;not null"`
	OccurredAt time.Time        `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transition) TableName() string { return "lifecycle_transitions" }
