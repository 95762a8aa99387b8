package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	obsmetrics "github.com/hirelens/hirelens/internal/observability/metrics"
	"github.com/hirelens/hirelens/internal/plan"
	gatedomain "github.com/hirelens/hirelens/internal/quotagate/domain"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	"github.com/hirelens/hirelens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// retryBackoff is the pause before the single retry on a transient
// persistence error.
const retryBackoff = 100 * time.Millisecond

const lockedDetail = "convert to a paid plan to unlock this feature"

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Lifecycle    lifecycledomain.Service
	Entitlements entitlementdomain.Service
	Usage        usagedomain.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	lifecycle    lifecycledomain.Service
	entitlements entitlementdomain.Service
	usage        usagedomain.Service
	metrics      *obsmetrics.Metrics
}

func NewService(p ServiceParam) gatedomain.Service {
	return &Service{
		log:          p.Log.Named("quotagate.service"),
		lifecycle:    p.Lifecycle,
		entitlements: p.Entitlements,
		usage:        p.Usage,
		metrics:      p.Metrics,
	}
}

// Check implements domain.Service. Transient persistence errors get one
// retry after a short backoff; anything still failing surfaces as an error
// and the caller denies the action.
func (s *Service) Check(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (gatedomain.Verdict, error) {
	if orgID == 0 {
		return gatedomain.Verdict{}, gatedomain.ErrInvalidOrganization
	}

	verdict, err := s.check(ctx, orgID, feature)
	if err != nil && db.IsTransientErr(err) {
		s.log.Warn("gate check transient failure, retrying",
			zap.String("org_id", orgID.String()),
			zap.String("feature_key", string(feature)),
			zap.Error(err),
		)
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return gatedomain.Verdict{}, ctx.Err()
		}
		verdict, err = s.check(ctx, orgID, feature)
	}
	if err != nil {
		return gatedomain.Verdict{}, err
	}

	if verdict.Allowed {
		s.metrics.RecordGateAllowed(ctx, string(feature))
	} else {
		s.metrics.RecordGateDenied(ctx, string(feature), string(verdict.Reason))
	}
	return verdict, nil
}

func (s *Service) check(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (gatedomain.Verdict, error) {
	current, err := s.lifecycle.EnsureCurrent(ctx, orgID)
	if err != nil {
		return gatedomain.Verdict{}, err
	}

	// Locked tenants keep whatever the free tier grants and nothing more.
	if current.Status.Locked() && !plan.FreeSet()[feature].Enabled {
		return gatedomain.Verdict{
			Allowed:    false,
			FeatureKey: feature,
			Reason:     gatedomain.ReasonLifecycleLocked,
			Detail:     lockedDetail,
		}, nil
	}

	enabled, err := s.entitlements.IsEnabled(ctx, orgID, feature)
	if err != nil {
		return gatedomain.Verdict{}, err
	}
	if !enabled {
		return gatedomain.Verdict{
			Allowed:    false,
			FeatureKey: feature,
			Reason:     gatedomain.ReasonFeatureDisabled,
		}, nil
	}

	limit, err := s.entitlements.QuotaLimitFor(ctx, orgID, feature)
	if err != nil {
		return gatedomain.Verdict{}, err
	}

	result, err := s.usage.TryConsume(ctx, orgID, feature, limit)
	if err != nil {
		return gatedomain.Verdict{}, err
	}
	if !result.Allowed {
		return gatedomain.Verdict{
			Allowed:    false,
			FeatureKey: feature,
			Remaining:  result.Remaining,
			Reason:     gatedomain.ReasonQuotaExceeded,
			Limit:      limit,
		}, nil
	}
	return gatedomain.Verdict{
		Allowed:    true,
		FeatureKey: feature,
		Remaining:  result.Remaining,
	}, nil
}
