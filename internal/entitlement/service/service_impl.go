package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/clock"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	obsmetrics "github.com/hirelens/hirelens/internal/observability/metrics"
	"github.com/hirelens/hirelens/internal/orgcontext"
	"github.com/hirelens/hirelens/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    entitlementdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    entitlementdomain.Repository
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("entitlement.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// ApplyPlan implements domain.Service.
func (s *Service) ApplyPlan(ctx context.Context, orgID snowflake.ID, tier plan.Tier) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ApplyPlanTx(ctx, tx, orgID, tier)
	})
}

// ApplyPlanTx implements domain.Service. The row set is fully replaced:
// features absent from the new tier become explicit enabled=false rows, so
// nothing from a previous tier can stay live.
func (s *Service) ApplyPlanTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, tier plan.Tier) error {
	if orgID == 0 {
		return entitlementdomain.ErrInvalidOrganization
	}

	set, err := plan.Resolve(tier)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	rows := make([]entitlementdomain.Entitlement, 0, len(set))
	for _, key := range plan.AllFeatures() {
		grant := set[key]
		rows = append(rows, entitlementdomain.Entitlement{
			OrgID:      orgID,
			FeatureKey: key,
			Enabled:    grant.Enabled,
			QuotaLimit: grant.QuotaLimit,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.repo.Replace(ctx, tx, orgID, rows); err != nil {
		return err
	}

	s.metrics.RecordPlanApplication(ctx, string(tier))
	s.log.Info("plan applied",
		zap.String("org_id", orgID.String()),
		zap.String("tier", string(tier)),
	)
	return nil
}

// IsEnabled implements domain.Service. Missing rows read as disabled.
func (s *Service) IsEnabled(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (bool, error) {
	if orgID == 0 {
		return false, entitlementdomain.ErrInvalidOrganization
	}
	row, err := s.repo.FindByFeature(ctx, s.db, orgID, feature)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	return row.Enabled, nil
}

// QuotaLimitFor implements domain.Service. Nil means unlimited.
func (s *Service) QuotaLimitFor(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (*int64, error) {
	if orgID == 0 {
		return nil, entitlementdomain.ErrInvalidOrganization
	}
	row, err := s.repo.FindByFeature(ctx, s.db, orgID, feature)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.Enabled {
		zero := int64(0)
		return &zero, nil
	}
	return row.QuotaLimit, nil
}

// CountForOrg implements domain.Service.
func (s *Service) CountForOrg(ctx context.Context, orgID snowflake.ID) (int64, error) {
	if orgID == 0 {
		return 0, entitlementdomain.ErrInvalidOrganization
	}
	return s.repo.CountByOrg(ctx, s.db, orgID)
}

// List implements domain.Service for the read-only entitlements endpoint.
func (s *Service) List(ctx context.Context) ([]entitlementdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, entitlementdomain.ErrInvalidOrganization
	}

	rows, err := s.repo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	out := make([]entitlementdomain.Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, entitlementdomain.Response{
			FeatureKey: string(row.FeatureKey),
			Enabled:    row.Enabled,
			QuotaLimit: row.QuotaLimit,
			UpdatedAt:  row.UpdatedAt,
		})
	}
	return out, nil
}
