package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hirelens/hirelens/internal/clock"
	"github.com/hirelens/hirelens/internal/config"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	entitlementrepo "github.com/hirelens/hirelens/internal/entitlement/repository"
	entitlementservice "github.com/hirelens/hirelens/internal/entitlement/service"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	lifecyclerepo "github.com/hirelens/hirelens/internal/lifecycle/repository"
	lifecycleservice "github.com/hirelens/hirelens/internal/lifecycle/service"
	"github.com/hirelens/hirelens/internal/organization/domain"
	"github.com/hirelens/hirelens/internal/organization/repository"
	"github.com/hirelens/hirelens/internal/plan"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, entitlementdomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Organization{},
		&lifecycledomain.Lifecycle{},
		&lifecycledomain.Transition{},
		&entitlementdomain.Entitlement{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	entitlements := entitlementservice.NewService(entitlementservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  entitlementrepo.Provide(),
	})
	lifecycle := lifecycleservice.NewService(lifecycleservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Config: config.Config{
			TrialDuration:   14 * 24 * time.Hour,
			PilotProgramEnd: fake.Now().Add(30 * 24 * time.Hour),
		},
		Node:         node,
		Repo:         lifecyclerepo.Provide(),
		Entitlements: entitlements,
	})

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     fake,
		Node:      node,
		Repo:      repository.Provide(),
		Lifecycle: lifecycle,
	})
	return svc.(*Service), entitlements
}

func TestCreateProvisionsLifecycleAndFreePlan(t *testing.T) {
	svc, entitlements := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, domain.CreateOrganizationRequest{
		Name:         "Acme Hiring",
		EmailDomains: []string{" Acme.example ", "", "careers.acme.example"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Slug != "acme-hiring" {
		t.Fatalf("slug = %q, want acme-hiring", resp.Slug)
	}
	if len(resp.EmailDomains) != 2 || resp.EmailDomains[0] != "acme.example" {
		t.Fatalf("email domains = %v, want normalized pair", resp.EmailDomains)
	}
	if resp.Status != string(lifecycledomain.StatusNew) {
		t.Fatalf("status = %q, want %q", resp.Status, lifecycledomain.StatusNew)
	}

	orgID, err := snowflake.ParseString(resp.ID)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	count, err := entitlements.CountForOrg(ctx, orgID)
	if err != nil {
		t.Fatalf("count entitlements: %v", err)
	}
	if want := int64(len(plan.AllFeatures())); count != want {
		t.Fatalf("entitlement rows = %d, want %d", count, want)
	}
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme"}); err != domain.ErrSlugTaken {
		t.Fatalf("duplicate create err = %v, want %v", err, domain.ErrSlugTaken)
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "  "}); err != domain.ErrInvalidName {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidName)
	}
}

func TestGetByIDIncludesLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Globex"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != string(lifecycledomain.StatusNew) {
		t.Fatalf("status = %q, want %q", resp.Status, lifecycledomain.StatusNew)
	}
	if resp.Tier != string(plan.TierFree) {
		t.Fatalf("tier = %q, want %q", resp.Tier, plan.TierFree)
	}

	if _, err := svc.GetByID(ctx, "not-a-snowflake"); err != domain.ErrInvalidOrganization {
		t.Fatalf("bad id err = %v, want %v", err, domain.ErrInvalidOrganization)
	}
}
