package service

import (
	"context"
	"errors"
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
	"github.com/hirelens/hirelens/internal/plan"
	gatedomain "github.com/hirelens/hirelens/internal/quotagate/domain"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	usagerepo "github.com/hirelens/hirelens/internal/usage/repository"
	usageservice "github.com/hirelens/hirelens/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	db        *gorm.DB
	gate      *Service
	lifecycle lifecycledomain.Service
	usage     usagedomain.Service
	clock     *clock.FakeClock
	node      *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&lifecycledomain.Lifecycle{},
		&lifecycledomain.Transition{},
		&entitlementdomain.Entitlement{},
		&usagedomain.UsageCounter{},
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
	usage := usageservice.NewService(usageservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  usagerepo.Provide(),
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
	gate := NewService(ServiceParam{
		Log:          zap.NewNop(),
		Lifecycle:    lifecycle,
		Entitlements: entitlements,
		Usage:        usage,
	})

	return &fixture{
		db:        db,
		gate:      gate.(*Service),
		lifecycle: lifecycle,
		usage:     usage,
		clock:     fake,
		node:      node,
	}
}

func (f *fixture) createOrg(t *testing.T) snowflake.ID {
	t.Helper()
	orgID := f.node.Generate()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.lifecycle.CreateTx(context.Background(), tx, orgID)
	})
	if err != nil {
		t.Fatalf("create lifecycle: %v", err)
	}
	return orgID
}

func TestGateTrialQuotaScenario(t *testing.T) {
	f := newFixture(t)
	orgID := f.createOrg(t)
	ctx := context.Background()

	if _, err := f.lifecycle.StartTrial(ctx, orgID); err != nil {
		t.Fatalf("start trial: %v", err)
	}

	// Trial grants 3 shortlists per day.
	for i, want := range []int64{2, 1, 0} {
		verdict, err := f.gate.Check(ctx, orgID, plan.FeatureShortlist)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !verdict.Allowed {
			t.Fatalf("check %d denied: %+v", i, verdict)
		}
		if verdict.Remaining == nil || *verdict.Remaining != want {
			t.Fatalf("check %d remaining = %v, want %d", i, verdict.Remaining, want)
		}
	}

	verdict, err := f.gate.Check(ctx, orgID, plan.FeatureShortlist)
	if err != nil {
		t.Fatalf("fourth check: %v", err)
	}
	if verdict.Allowed {
		t.Fatal("fourth check allowed past quota")
	}
	if verdict.Reason != gatedomain.ReasonQuotaExceeded {
		t.Fatalf("reason = %s, want %s", verdict.Reason, gatedomain.ReasonQuotaExceeded)
	}
	if verdict.Limit == nil || *verdict.Limit != 3 {
		t.Fatalf("limit = %v, want 3", verdict.Limit)
	}

	// Past trial end the free plan governs, not the trial's stale grants.
	f.clock.Advance(15 * 24 * time.Hour)

	// The expired-trial status is locked, so non-free features deny on the
	// lock before the entitlement flag is even consulted.
	verdict, err = f.gate.Check(ctx, orgID, plan.FeatureInterviewKit)
	if err != nil {
		t.Fatalf("post-expiry interview_kit check: %v", err)
	}
	if verdict.Allowed || verdict.Reason != gatedomain.ReasonLifecycleLocked {
		t.Fatalf("post-expiry interview_kit verdict = %+v, want %s", verdict, gatedomain.ReasonLifecycleLocked)
	}

	verdict, err = f.gate.Check(ctx, orgID, plan.FeatureShortlist)
	if err != nil {
		t.Fatalf("post-expiry shortlist check: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("post-expiry shortlist verdict = %+v, want free-tier allow", verdict)
	}
	if verdict.Remaining == nil || *verdict.Remaining != 0 {
		t.Fatalf("post-expiry shortlist remaining = %v, want 0 of the free limit", verdict.Remaining)
	}

	verdict, err = f.gate.Check(ctx, orgID, plan.FeatureShortlist)
	if err != nil {
		t.Fatalf("post-expiry second shortlist check: %v", err)
	}
	if verdict.Allowed || verdict.Reason != gatedomain.ReasonQuotaExceeded {
		t.Fatalf("post-expiry second shortlist verdict = %+v, want %s", verdict, gatedomain.ReasonQuotaExceeded)
	}
	if verdict.Limit == nil || *verdict.Limit != 1 {
		t.Fatalf("post-expiry limit = %v, want the free limit 1", verdict.Limit)
	}
}

func TestGateLockedPilot(t *testing.T) {
	f := newFixture(t)
	orgID := f.createOrg(t)
	ctx := context.Background()

	if _, err := f.lifecycle.StartPilot(ctx, orgID); err != nil {
		t.Fatalf("start pilot: %v", err)
	}
	f.clock.Advance(31 * 24 * time.Hour)

	verdict, err := f.gate.Check(ctx, orgID, plan.FeatureBiasAudit)
	if err != nil {
		t.Fatalf("bias_audit check: %v", err)
	}
	if verdict.Allowed || verdict.Reason != gatedomain.ReasonLifecycleLocked {
		t.Fatalf("bias_audit verdict = %+v, want %s", verdict, gatedomain.ReasonLifecycleLocked)
	}
	if verdict.Detail == "" {
		t.Fatal("locked denial must say how to unlock")
	}

	// Features the free tier grants stay usable while locked.
	verdict, err = f.gate.Check(ctx, orgID, plan.FeatureShortlist)
	if err != nil {
		t.Fatalf("shortlist check: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("shortlist verdict while locked = %+v, want allow", verdict)
	}
}

func TestGateDenialDoesNotConsume(t *testing.T) {
	f := newFixture(t)
	orgID := f.createOrg(t)
	ctx := context.Background()

	// free tier: bias_audit disabled
	for i := 0; i < 3; i++ {
		verdict, err := f.gate.Check(ctx, orgID, plan.FeatureBiasAudit)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if verdict.Allowed {
			t.Fatalf("check %d allowed disabled feature", i)
		}
	}

	used, err := f.usage.UsedToday(ctx, orgID, plan.FeatureBiasAudit)
	if err != nil {
		t.Fatalf("used today: %v", err)
	}
	if used != 0 {
		t.Fatalf("used = %d after denials, want 0", used)
	}
}

type flakyUsage struct {
	inner    usagedomain.Service
	failures int
	err      error
	calls    int
}

func (f *flakyUsage) TryConsume(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey, limit *int64) (usagedomain.ConsumeResult, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return usagedomain.ConsumeResult{}, f.err
	}
	return f.inner.TryConsume(ctx, orgID, feature, limit)
}

func (f *flakyUsage) UsedToday(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (int64, error) {
	return f.inner.UsedToday(ctx, orgID, feature)
}

func (f *flakyUsage) List(ctx context.Context) ([]usagedomain.Response, error) {
	return f.inner.List(ctx)
}

func (f *flakyUsage) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.inner.PurgeBefore(ctx, cutoff)
}

func newFlakyGate(f *fixture, flaky *flakyUsage) *Service {
	gate := NewService(ServiceParam{
		Log:          zap.NewNop(),
		Lifecycle:    f.lifecycle,
		Entitlements: entitlementservice.NewService(entitlementservice.ServiceParam{
			DB:    f.db,
			Log:   zap.NewNop(),
			Clock: f.clock,
			Repo:  entitlementrepo.Provide(),
		}),
		Usage: flaky,
	})
	return gate.(*Service)
}

func TestGateRetriesTransientErrorOnce(t *testing.T) {
	f := newFixture(t)
	orgID := f.createOrg(t)
	ctx := context.Background()

	flaky := &flakyUsage{inner: f.usage, failures: 1, err: context.DeadlineExceeded}
	gate := newFlakyGate(f, flaky)

	verdict, err := gate.Check(ctx, orgID, plan.FeatureShortlist)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("verdict = %+v, want allow after retry", verdict)
	}
	if flaky.calls != 2 {
		t.Fatalf("usage calls = %d, want 2", flaky.calls)
	}
}

func TestGateFailsClosedOnPersistentError(t *testing.T) {
	f := newFixture(t)
	orgID := f.createOrg(t)
	ctx := context.Background()

	flaky := &flakyUsage{inner: f.usage, failures: 10, err: errors.New("disk on fire")}
	gate := newFlakyGate(f, flaky)

	if _, err := gate.Check(ctx, orgID, plan.FeatureShortlist); err == nil {
		t.Fatal("check must surface the infrastructure error")
	}
	if flaky.calls != 1 {
		t.Fatalf("usage calls = %d, want 1 for a non-transient error", flaky.calls)
	}
}

func TestGateTransientErrorStillFailsClosedAfterRetry(t *testing.T) {
	f := newFixture(t)
	orgID := f.createOrg(t)
	ctx := context.Background()

	flaky := &flakyUsage{inner: f.usage, failures: 10, err: context.DeadlineExceeded}
	gate := newFlakyGate(f, flaky)

	if _, err := gate.Check(ctx, orgID, plan.FeatureShortlist); err == nil {
		t.Fatal("check must surface the error after the retry fails")
	}
	if flaky.calls != 2 {
		t.Fatalf("usage calls = %d, want 2", flaky.calls)
	}
}
