package plan

// grants holds the per-tier feature table. Only the enabled features are
// listed; Resolve expands the table to the full closed mapping so a feature
// missing here is explicitly disabled, never undefined.
var grants = map[Tier]map[FeatureKey]Entitlement{
	TierFree: {
		FeatureShortlist:  {Enabled: true, QuotaLimit: limit(1)},
		FeatureRoleDesign: {Enabled: true, QuotaLimit: limit(2)},
	},
	TierTrial: {
		FeatureShortlist:         {Enabled: true, QuotaLimit: limit(3)},
		FeatureJobMarketing:      {Enabled: true, QuotaLimit: limit(3)},
		FeatureCandidateCoaching: {Enabled: true, QuotaLimit: limit(5)},
		FeatureInterviewKit:      {Enabled: true, QuotaLimit: limit(3)},
		FeatureRoleDesign:        {Enabled: true, QuotaLimit: limit(5)},
	},
	TierGrowthPilot: {
		FeatureShortlist:         {Enabled: true, QuotaLimit: limit(10)},
		FeatureJobMarketing:      {Enabled: true, QuotaLimit: limit(10)},
		FeatureCandidateCoaching: {Enabled: true, QuotaLimit: limit(10)},
		FeatureBiasAudit:         {Enabled: true, QuotaLimit: limit(5)},
		FeatureInterviewKit:      {Enabled: true, QuotaLimit: limit(10)},
		FeatureRoleDesign:        {Enabled: true},
	},
	TierPaidGrowth: {
		FeatureShortlist:         {Enabled: true},
		FeatureJobMarketing:      {Enabled: true, QuotaLimit: limit(100)},
		FeatureCandidateCoaching: {Enabled: true},
		FeatureBiasAudit:         {Enabled: true, QuotaLimit: limit(50)},
		FeatureInterviewKit:      {Enabled: true},
		FeatureRoleDesign:        {Enabled: true},
	},
}

// Resolve expands a tier into its full feature set. Every known feature key
// gets an entry; features the tier does not grant come back disabled.
// Unknown tiers are a configuration bug and must not fall back to any plan.
func Resolve(tier Tier) (FeatureSet, error) {
	table, ok := grants[tier]
	if !ok {
		return nil, ErrUnknownTier
	}

	set := make(FeatureSet, len(AllFeatures()))
	for _, key := range AllFeatures() {
		if grant, ok := table[key]; ok {
			set[key] = grant
			continue
		}
		set[key] = Entitlement{Enabled: false}
	}
	return set, nil
}

// FreeSet returns the free tier's feature set. Locked and expired tenants are
// held to this set by the quota gate.
func FreeSet() FeatureSet {
	set, err := Resolve(TierFree)
	if err != nil {
		panic("plan: free tier missing from grant table")
	}
	return set
}

func limit(n int64) *int64 { return &n }
