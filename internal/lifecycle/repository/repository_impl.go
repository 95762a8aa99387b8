package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() lifecycledomain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, lifecycle *lifecycledomain.Lifecycle) error {
	return db.WithContext(ctx).Create(lifecycle).Error
}

func (r *repo) FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*lifecycledomain.Lifecycle, error) {
	var row lifecycledomain.Lifecycle
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, to lifecycledomain.Status, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	tx := db.WithContext(ctx).
		Model(&lifecycledomain.Lifecycle{}).
		Where("org_id = ? AND status = ?", orgID, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) RecordTransition(ctx context.Context, db *gorm.DB, transition *lifecycledomain.Transition) error {
	return db.WithContext(ctx).Create(transition).Error
}

func (r *repo) ListTransitions(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]lifecycledomain.Transition, error) {
	var rows []lifecycledomain.Transition
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("occurred_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CountTransitions(ctx context.Context, db *gorm.DB, orgID snowflake.ID, to lifecycledomain.Status) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&lifecycledomain.Transition{}).
		Where("org_id = ? AND to_status = ?", orgID, to).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
