// Package plan is the static catalog mapping a subscription tier to the
// feature flags and per-feature daily quotas it grants.
package plan

import "errors"

// FeatureKey is a closed enumeration of every gated feature the product knows
// about. Adding a feature means adding a key here and a row to each tier's
// grant table; an unrecognized key cannot reach the quota gate.
type FeatureKey string

const (
	FeatureShortlist         FeatureKey = "shortlist"
	FeatureJobMarketing      FeatureKey = "job_marketing"
	FeatureCandidateCoaching FeatureKey = "candidate_coaching"
	FeatureBiasAudit         FeatureKey = "bias_audit"
	FeatureInterviewKit      FeatureKey = "interview_kit"
	FeatureRoleDesign        FeatureKey = "role_design"
)

// AllFeatures lists every known feature key in stable order.
func AllFeatures() []FeatureKey {
	return []FeatureKey{
		FeatureShortlist,
		FeatureJobMarketing,
		FeatureCandidateCoaching,
		FeatureBiasAudit,
		FeatureInterviewKit,
		FeatureRoleDesign,
	}
}

// ParseFeatureKey validates a wire-level feature string against the closed set.
func ParseFeatureKey(raw string) (FeatureKey, error) {
	key := FeatureKey(raw)
	switch key {
	case FeatureShortlist,
		FeatureJobMarketing,
		FeatureCandidateCoaching,
		FeatureBiasAudit,
		FeatureInterviewKit,
		FeatureRoleDesign:
		return key, nil
	default:
		return "", ErrUnknownFeature
	}
}

// Tier names a plan bundle.
type Tier string

const (
	TierFree        Tier = "free"
	TierTrial       Tier = "trial"
	TierGrowthPilot Tier = "growth_pilot"
	TierPaidGrowth  Tier = "paid_growth"
)

// ParseTier validates a wire-level tier string.
func ParseTier(raw string) (Tier, error) {
	tier := Tier(raw)
	switch tier {
	case TierFree, TierTrial, TierGrowthPilot, TierPaidGrowth:
		return tier, nil
	default:
		return "", ErrUnknownTier
	}
}

// Entitlement is one feature grant: the flag plus an optional daily quota.
// A nil QuotaLimit means unlimited.
type Entitlement struct {
	Enabled    bool
	QuotaLimit *int64
}

// FeatureSet is a closed mapping with an entry for every known feature key,
// including the disabled ones.
type FeatureSet map[FeatureKey]Entitlement

var (
	ErrUnknownTier    = errors.New("unknown_tier")
	ErrUnknownFeature = errors.New("unknown_feature")
)
