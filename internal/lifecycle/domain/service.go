package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Response is the wire representation of a lifecycle record.
type Response struct {
	OrgID       string     `json:"org_id"`
	Tier        string     `json:"tier"`
	Status      string     `json:"status"`
	TrialStart  *time.Time `json:"trial_start,omitempty"`
	TrialEnd    *time.Time `json:"trial_end,omitempty"`
	PilotStart  *time.Time `json:"pilot_start,omitempty"`
	PilotEnd    *time.Time `json:"pilot_end,omitempty"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
}

// TransitionResponse is the wire representation of one history row.
type TransitionResponse struct {
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Service owns every mutation of the lifecycle record. Status changes and
// their entitlement application commit in one transaction so no reader can
// observe a transition with stale entitlements.
type Service interface {
	// CreateTx inserts the status=new record and materializes the free plan
	// inside a caller-owned transaction, so org creation is one commit.
	CreateTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error
	StartTrial(ctx context.Context, orgID snowflake.ID) (*Lifecycle, error)
	StartPilot(ctx context.Context, orgID snowflake.ID) (*Lifecycle, error)
	// ConvertToPaid upgrades from any non-paid state. Repeated calls for an
	// already-paid org succeed without a second transition, billing
	// providers redeliver webhooks.
	ConvertToPaid(ctx context.Context, orgID snowflake.ID, billingRef string) (*Lifecycle, error)
	// EnsureCurrent applies any due expiry transition for the org and
	// returns the up-to-date record. Safe to call concurrently; racing
	// callers produce exactly one transition.
	EnsureCurrent(ctx context.Context, orgID snowflake.ID) (*Lifecycle, error)
	Get(ctx context.Context) (*Response, error)
	History(ctx context.Context) ([]TransitionResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrLifecycleNotFound   = errors.New("lifecycle_not_found")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrUnknownStatus       = errors.New("unknown_status")
)
