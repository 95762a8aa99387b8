package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/clock"
	"github.com/hirelens/hirelens/internal/orgcontext"
	"github.com/hirelens/hirelens/internal/plan"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  usagedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  usagedomain.Repository
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// TryConsume implements domain.Service. The counter row is created lazily on
// first consumption of the day, then a single conditional update both checks
// the limit and records the unit. Two statements, each atomic, no
// transaction needed: the insert is idempotent and the update cannot push
// used past limit regardless of interleaving.
func (s *Service) TryConsume(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey, limit *int64) (usagedomain.ConsumeResult, error) {
	if orgID == 0 {
		return usagedomain.ConsumeResult{}, usagedomain.ErrInvalidOrganization
	}

	day := usagedomain.DayKey(s.clock.Now())

	if limit != nil && *limit <= 0 {
		used, err := s.usedOn(ctx, orgID, feature, day)
		if err != nil {
			return usagedomain.ConsumeResult{}, err
		}
		zero := int64(0)
		return usagedomain.ConsumeResult{Allowed: false, Used: used, Remaining: &zero}, nil
	}

	if err := s.repo.EnsureRow(ctx, s.db, orgID, feature, day); err != nil {
		return usagedomain.ConsumeResult{}, err
	}

	if limit == nil {
		if err := s.repo.Increment(ctx, s.db, orgID, feature, day); err != nil {
			return usagedomain.ConsumeResult{}, err
		}
		used, err := s.usedOn(ctx, orgID, feature, day)
		if err != nil {
			return usagedomain.ConsumeResult{}, err
		}
		return usagedomain.ConsumeResult{Allowed: true, Used: used}, nil
	}

	ok, err := s.repo.IncrementIfBelow(ctx, s.db, orgID, feature, day, *limit)
	if err != nil {
		return usagedomain.ConsumeResult{}, err
	}

	used, err := s.usedOn(ctx, orgID, feature, day)
	if err != nil {
		return usagedomain.ConsumeResult{}, err
	}
	remaining := *limit - used
	if remaining < 0 {
		remaining = 0
	}

	if !ok {
		s.log.Debug("quota exhausted",
			zap.String("org_id", orgID.String()),
			zap.String("feature_key", string(feature)),
			zap.String("day", day),
		)
	}
	return usagedomain.ConsumeResult{Allowed: ok, Used: used, Remaining: &remaining}, nil
}

func (s *Service) usedOn(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey, day string) (int64, error) {
	row, err := s.repo.Find(ctx, s.db, orgID, feature, day)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.Used, nil
}

// UsedToday implements domain.Service. A missing row reads as zero.
func (s *Service) UsedToday(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (int64, error) {
	if orgID == 0 {
		return 0, usagedomain.ErrInvalidOrganization
	}
	return s.usedOn(ctx, orgID, feature, usagedomain.DayKey(s.clock.Now()))
}

// List implements domain.Service for the current day's counters.
func (s *Service) List(ctx context.Context) ([]usagedomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, usagedomain.ErrInvalidOrganization
	}

	day := usagedomain.DayKey(s.clock.Now())
	rows, err := s.repo.ListByOrgAndDay(ctx, s.db, orgID, day)
	if err != nil {
		return nil, err
	}

	out := make([]usagedomain.Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, usagedomain.Response{
			FeatureKey: string(row.FeatureKey),
			Day:        row.Day,
			Used:       row.Used,
			UpdatedAt:  row.UpdatedAt,
		})
	}
	return out, nil
}

// PurgeBefore implements domain.Service.
func (s *Service) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	day := usagedomain.DayKey(cutoff)
	removed, err := s.repo.DeleteBefore(ctx, s.db, day)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("purged usage counters",
			zap.String("before_day", day),
			zap.Int64("rows", removed),
		)
	}
	return removed, nil
}
