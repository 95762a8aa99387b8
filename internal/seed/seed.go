package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	organizationdomain "github.com/hirelens/hirelens/internal/organization/domain"
	"github.com/hirelens/hirelens/internal/plan"
	"gorm.io/gorm"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
)

// EnsureDefaultOrg seeds the default organization for startup bootstrap.
func EnsureDefaultOrg(db *gorm.DB) error {
	return ensureDefaultOrg(db, 0)
}

// EnsureDefaultOrgWithID seeds the default organization with a fixed ID so
// self-hosted installs keep a stable org reference across restarts.
func EnsureDefaultOrgWithID(db *gorm.DB, id int64) error {
	return ensureDefaultOrg(db, id)
}

func ensureDefaultOrg(db *gorm.DB, fixedID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureOrgTx(ctx, tx, node, fixedID)
		if err != nil {
			return err
		}
		if err := ensureLifecycleTx(ctx, tx, org.ID); err != nil {
			return err
		}
		return ensureEntitlementsTx(ctx, tx, org.ID)
	})
}

func ensureOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, fixedID int64) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}

	id := node.Generate()
	if fixedID != 0 {
		id = snowflake.ID(fixedID)
	}

	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func ensureLifecycleTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	var lc lifecycledomain.Lifecycle
	err := tx.WithContext(ctx).Where("org_id = ?", orgID).First(&lc).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	lc = lifecycledomain.Lifecycle{
		OrgID:     orgID,
		Tier:      plan.TierFree,
		Status:    lifecycledomain.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Create(&lc).Error
}

func ensureEntitlementsTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&entitlementdomain.Entitlement{}).
		Where("org_id = ?", orgID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	grants, err := plan.Resolve(plan.TierFree)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rows := make([]entitlementdomain.Entitlement, 0, len(plan.AllFeatures()))
	for _, feature := range plan.AllFeatures() {
		grant := grants[feature]
		rows = append(rows, entitlementdomain.Entitlement{
			OrgID:      orgID,
			FeatureKey: feature,
			Enabled:    grant.Enabled,
			QuotaLimit: grant.QuotaLimit,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return tx.WithContext(ctx).Create(&rows).Error
}
