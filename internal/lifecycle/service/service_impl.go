package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/clock"
	"github.com/hirelens/hirelens/internal/config"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	obsmetrics "github.com/hirelens/hirelens/internal/observability/metrics"
	"github.com/hirelens/hirelens/internal/orgcontext"
	"github.com/hirelens/hirelens/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Config       config.Config
	Node         *snowflake.Node
	Repo         lifecycledomain.Repository
	Entitlements entitlementdomain.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	cfg          config.Config
	node         *snowflake.Node
	repo         lifecycledomain.Repository
	entitlements entitlementdomain.Service
	metrics      *obsmetrics.Metrics
}

func NewService(p ServiceParam) lifecycledomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("lifecycle.service"),
		clock:        p.Clock,
		cfg:          p.Config,
		node:         p.Node,
		repo:         p.Repo,
		entitlements: p.Entitlements,
		metrics:      p.Metrics,
	}
}

// CreateTx implements domain.Service.
func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	if orgID == 0 {
		return lifecycledomain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	record := lifecycledomain.Lifecycle{
		OrgID:     orgID,
		Tier:      plan.TierFree,
		Status:    lifecycledomain.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, tx, &record); err != nil {
		return err
	}
	return s.entitlements.ApplyPlanTx(ctx, tx, orgID, plan.TierFree)
}

// StartTrial implements domain.Service. Only a fresh org can enter the
// trial; the window is relative to the start instant.
func (s *Service) StartTrial(ctx context.Context, orgID snowflake.ID) (*lifecycledomain.Lifecycle, error) {
	now := s.clock.Now()
	trialEnd := now.Add(s.cfg.TrialDuration)

	err := s.transition(ctx, orgID,
		lifecycledomain.StatusNew, lifecycledomain.StatusTrialActive,
		lifecycledomain.ReasonTrialStarted, plan.TierTrial,
		map[string]interface{}{
			"tier":        plan.TierTrial,
			"trial_start": now,
			"trial_end":   trialEnd,
			"updated_at":  now,
		}, false)
	if err != nil {
		return nil, err
	}
	return s.mustFind(ctx, orgID)
}

// StartPilot implements domain.Service. The pilot window closes at the
// program-wide end instant regardless of when the org joined.
func (s *Service) StartPilot(ctx context.Context, orgID snowflake.ID) (*lifecycledomain.Lifecycle, error) {
	now := s.clock.Now()
	pilotEnd := s.cfg.PilotProgramEnd

	err := s.transition(ctx, orgID,
		lifecycledomain.StatusNew, lifecycledomain.StatusPilotActive,
		lifecycledomain.ReasonPilotStarted, plan.TierGrowthPilot,
		map[string]interface{}{
			"tier":        plan.TierGrowthPilot,
			"pilot_start": now,
			"pilot_end":   pilotEnd,
			"updated_at":  now,
		}, false)
	if err != nil {
		return nil, err
	}
	return s.mustFind(ctx, orgID)
}

// ConvertToPaid implements domain.Service.
func (s *Service) ConvertToPaid(ctx context.Context, orgID snowflake.ID, billingRef string) (*lifecycledomain.Lifecycle, error) {
	if orgID == 0 {
		return nil, lifecycledomain.ErrInvalidOrganization
	}

	// The pre-state is whatever the org is in right now, so read first and
	// transition conditionally on it. One retry covers a concurrent expiry
	// sliding the status under us.
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.repo.FindByOrg(ctx, s.db, orgID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, lifecycledomain.ErrLifecycleNotFound
		}
		if current.Status == lifecycledomain.StatusPaidActive {
			return current, nil
		}

		now := s.clock.Now()
		err = s.transition(ctx, orgID,
			current.Status, lifecycledomain.StatusPaidActive,
			lifecycledomain.ReasonConverted, plan.TierPaidGrowth,
			map[string]interface{}{
				"tier":         plan.TierPaidGrowth,
				"converted_at": now,
				"billing_ref":  billingRef,
				"updated_at":   now,
			}, false)
		if err == lifecycledomain.ErrInvalidTransition {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.mustFind(ctx, orgID)
	}
	return nil, lifecycledomain.ErrInvalidTransition
}

// EnsureCurrent implements domain.Service. Called at the start of every
// tenant-scoped request path, so expiry staleness is bounded by the time
// since the tenant's last request.
func (s *Service) EnsureCurrent(ctx context.Context, orgID snowflake.ID) (*lifecycledomain.Lifecycle, error) {
	if orgID == 0 {
		return nil, lifecycledomain.ErrInvalidOrganization
	}

	current, err := s.repo.FindByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, lifecycledomain.ErrLifecycleNotFound
	}

	switch current.Status {
	case lifecycledomain.StatusTrialActive:
		if err := s.expireTrialIfNeeded(ctx, current); err != nil {
			return nil, err
		}
	case lifecycledomain.StatusPilotActive:
		if err := s.expirePilotIfNeeded(ctx, current); err != nil {
			return nil, err
		}
	}

	current, err = s.mustFind(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.repairEntitlements(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *Service) expireTrialIfNeeded(ctx context.Context, current *lifecycledomain.Lifecycle) error {
	now := s.clock.Now()
	if current.TrialEnd == nil || now.Before(*current.TrialEnd) {
		return nil
	}
	return s.transition(ctx, current.OrgID,
		lifecycledomain.StatusTrialActive, lifecycledomain.StatusTrialExpiredFree,
		lifecycledomain.ReasonTrialExpired, plan.TierFree,
		map[string]interface{}{
			"tier":       plan.TierFree,
			"updated_at": now,
		}, true)
}

func (s *Service) expirePilotIfNeeded(ctx context.Context, current *lifecycledomain.Lifecycle) error {
	now := s.clock.Now()
	if current.PilotEnd == nil || now.Before(*current.PilotEnd) {
		return nil
	}
	return s.transition(ctx, current.OrgID,
		lifecycledomain.StatusPilotActive, lifecycledomain.StatusPilotLocked,
		lifecycledomain.ReasonPilotExpired, plan.TierFree,
		map[string]interface{}{
			"tier":       plan.TierFree,
			"updated_at": now,
		}, true)
}

// transition commits the status flip, its history row and the entitlement
// replacement in one transaction. With tolerateLost, losing the conditional
// update to a racing caller counts as done; otherwise it is
// ErrInvalidTransition.
func (s *Service) transition(ctx context.Context, orgID snowflake.ID, from, to lifecycledomain.Status, reason lifecycledomain.TransitionReason, tier plan.Tier, updates map[string]interface{}, tolerateLost bool) error {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.TransitionStatus(ctx, tx, orgID, from, to, updates)
		if err != nil {
			return err
		}
		if !ok {
			if tolerateLost {
				return nil
			}
			return lifecycledomain.ErrInvalidTransition
		}

		record := lifecycledomain.Transition{
			ID:         s.node.Generate(),
			OrgID:      orgID,
			FromStatus: from,
			ToStatus:   to,
			Reason:     reason,
			OccurredAt: s.clock.Now(),
		}
		if err := s.repo.RecordTransition(ctx, tx, &record); err != nil {
			return err
		}
		if err := s.entitlements.ApplyPlanTx(ctx, tx, orgID, tier); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	if applied {
		s.metrics.RecordLifecycleTransition(ctx, string(from), string(to), string(reason))
		s.log.Info("lifecycle transition",
			zap.String("org_id", orgID.String()),
			zap.String("from_status", string(from)),
			zap.String("to_status", string(to)),
			zap.String("reason", string(reason)),
		)
	}
	return nil
}

// repairEntitlements forces a plan re-application when the lifecycle row
// exists without its materialized rows. Should be unreachable given the
// transactional transition, but a status with stale entitlements must never
// be trusted.
func (s *Service) repairEntitlements(ctx context.Context, current *lifecycledomain.Lifecycle) error {
	count, err := s.entitlements.CountForOrg(ctx, current.OrgID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tier, err := lifecycledomain.TierForStatus(current.Status)
	if err != nil {
		return err
	}
	s.log.Warn("lifecycle without entitlements, reapplying plan",
		zap.String("org_id", current.OrgID.String()),
		zap.String("status", string(current.Status)),
		zap.String("tier", string(tier)),
	)
	return s.entitlements.ApplyPlan(ctx, current.OrgID, tier)
}

func (s *Service) mustFind(ctx context.Context, orgID snowflake.ID) (*lifecycledomain.Lifecycle, error) {
	current, err := s.repo.FindByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, lifecycledomain.ErrLifecycleNotFound
	}
	return current, nil
}

// Get implements domain.Service for the read-only lifecycle endpoint.
func (s *Service) Get(ctx context.Context) (*lifecycledomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, lifecycledomain.ErrInvalidOrganization
	}

	current, err := s.EnsureCurrent(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &lifecycledomain.Response{
		OrgID:       current.OrgID.String(),
		Tier:        string(current.Tier),
		Status:      string(current.Status),
		TrialStart:  current.TrialStart,
		TrialEnd:    current.TrialEnd,
		PilotStart:  current.PilotStart,
		PilotEnd:    current.PilotEnd,
		ConvertedAt: current.ConvertedAt,
	}, nil
}

// History implements domain.Service.
func (s *Service) History(ctx context.Context) ([]lifecycledomain.TransitionResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, lifecycledomain.ErrInvalidOrganization
	}

	rows, err := s.repo.ListTransitions(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]lifecycledomain.TransitionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, lifecycledomain.TransitionResponse{
			FromStatus: string(row.FromStatus),
			ToStatus:   string(row.ToStatus),
			Reason:     string(row.Reason),
			OccurredAt: row.OccurredAt,
		})
	}
	return out, nil
}
