package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	"github.com/hirelens/hirelens/internal/plan"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

func (r *repo) Replace(ctx context.Context, db *gorm.DB, orgID snowflake.ID, rows []entitlementdomain.Entitlement) error {
	if err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Delete(&entitlementdomain.Entitlement{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) FindByFeature(ctx context.Context, db *gorm.DB, orgID snowflake.ID, feature plan.FeatureKey) (*entitlementdomain.Entitlement, error) {
	var row entitlementdomain.Entitlement
	err := db.WithContext(ctx).
		Where("org_id = ? AND feature_key = ?", orgID, feature).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]entitlementdomain.Entitlement, error) {
	var rows []entitlementdomain.Entitlement
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("feature_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&entitlementdomain.Entitlement{}).
		Where("org_id = ?", orgID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
