package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) EnsureRow(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string) error {
	row := usagedomain.UsageCounter{
		OrgID:      orgID,
		FeatureKey: feature,
		Day:        day,
		Used:       0,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (r *repo) IncrementIfBelow(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string, limit int64) (bool, error) {
	tx := db.WithContext(ctx).
		Model(&usagedomain.UsageCounter{}).
		Where("org_id = ? AND feature_key = ? AND day = ? AND used < ?", orgID, feature, day, limit).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + 1"),
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string) error {
	return db.WithContext(ctx).
		Model(&usagedomain.UsageCounter{}).
		Where("org_id = ? AND feature_key = ? AND day = ?", orgID, feature, day).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey, day string) (*usagedomain.UsageCounter, error) {
	var row usagedomain.UsageCounter
	err := db.WithContext(ctx).
		Where("org_id = ? AND feature_key = ? AND day = ?", orgID, feature, day).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) ListByOrgAndDay(ctx context.Context, db *gorm.DB, orgID snowflake.ID, day string) ([]usagedomain.UsageCounter, error) {
	var rows []usagedomain.UsageCounter
	err := db.WithContext(ctx).
		Where("org_id = ? AND day = ?", orgID, day).
		Order("feature_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) DeleteBefore(ctx context.Context, db *gorm.DB, day string) (int64, error) {
	tx := db.WithContext(ctx).
		Where("day < ?", day).
		Delete(&usagedomain.UsageCounter{})
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}
