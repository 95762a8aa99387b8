// Package domain defines the quota gate's verdict types. Denials are data,
// not errors; an error from the gate means the outcome is unknown and the
// caller must fail closed.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
)

// Reason classifies a denial.
type Reason string

const (
	ReasonFeatureDisabled Reason = "feature_disabled"
	ReasonQuotaExceeded   Reason = "quota_exceeded"
	ReasonLifecycleLocked Reason = "lifecycle_locked"
)

// Verdict is the gate's answer for one consumption attempt. Remaining is nil
// when the feature has no limit; Limit names the quota that caused a
// quota_exceeded denial so the caller can explain it.
type Verdict struct {
	Allowed    bool            `json:"allowed"`
	FeatureKey plan.FeatureKey `json:"feature_key"`
	Remaining  *int64          `json:"remaining,omitempty"`
	Reason     Reason          `json:"reason,omitempty"`
	Limit      *int64          `json:"limit,omitempty"`
	// Detail tells a denied caller what would unlock the feature.
	Detail string `json:"detail,omitempty"`
}

// Service is the single synchronous decision point in front of every paid
// action. Check consumes one quota unit on Allow and nothing otherwise.
type Service interface {
	Check(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (Verdict, error)
}

var ErrInvalidOrganization = errors.New("invalid_organization")
