package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/hirelens/hirelens/internal/clock"
	"github.com/hirelens/hirelens/internal/config"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	entitlementrepo "github.com/hirelens/hirelens/internal/entitlement/repository"
	entitlementservice "github.com/hirelens/hirelens/internal/entitlement/service"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	lifecyclerepo "github.com/hirelens/hirelens/internal/lifecycle/repository"
	lifecycleservice "github.com/hirelens/hirelens/internal/lifecycle/service"
	orgdomain "github.com/hirelens/hirelens/internal/organization/domain"
	orgrepo "github.com/hirelens/hirelens/internal/organization/repository"
	orgservice "github.com/hirelens/hirelens/internal/organization/service"
	gateservice "github.com/hirelens/hirelens/internal/quotagate/service"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
	usagerepo "github.com/hirelens/hirelens/internal/usage/repository"
	usageservice "github.com/hirelens/hirelens/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	server *Server
	clock  *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
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
		&orgdomain.Organization{},
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
	cfg := config.Config{
		HTTPAddr:        ":0",
		TrialDuration:   14 * 24 * time.Hour,
		PilotProgramEnd: fake.Now().Add(30 * 24 * time.Hour),
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
		DB:           db,
		Log:          zap.NewNop(),
		Clock:        fake,
		Config:       cfg,
		Node:         node,
		Repo:         lifecyclerepo.Provide(),
		Entitlements: entitlements,
	})
	organizations := orgservice.NewService(orgservice.ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     fake,
		Node:      node,
		Repo:      orgrepo.Provide(),
		Lifecycle: lifecycle,
	})
	gate := gateservice.NewService(gateservice.ServiceParam{
		Log:          zap.NewNop(),
		Lifecycle:    lifecycle,
		Entitlements: entitlements,
		Usage:        usage,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		DB:              db,
		GenID:           node,
		Clock:           fake,
		OrganizationSvc: organizations,
		LifecycleSvc:    lifecycle,
		EntitlementSvc:  entitlements,
		UsageSvc:        usage,
		GateSvc:         gate,
	})

	return &testServer{server: srv, clock: fake}
}

func (ts *testServer) do(t *testing.T, method, path, orgID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if orgID != "" {
		req.Header.Set(HeaderOrg, orgID)
	}

	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createOrg(t *testing.T, name string) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/organizations", "", gin.H{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create org status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.ID
}

func decodeVerdict(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var verdict map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v (body %s)", err, rec.Body.String())
	}
	return verdict
}

func TestGateCheckEndpointTrialScenario(t *testing.T) {
	ts := newTestServer(t)
	orgID := ts.createOrg(t, "Acme Hiring")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/organizations/%s/lifecycle/trial", orgID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start trial status = %d, body %s", rec.Code, rec.Body.String())
	}

	for i, want := range []float64{2, 1, 0} {
		rec := ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "shortlist"})
		if rec.Code != http.StatusOK {
			t.Fatalf("check %d status = %d, body %s", i, rec.Code, rec.Body.String())
		}
		verdict := decodeVerdict(t, rec)
		if verdict["allowed"] != true {
			t.Fatalf("check %d not allowed: %v", i, verdict)
		}
		if verdict["remaining"] != want {
			t.Fatalf("check %d remaining = %v, want %v", i, verdict["remaining"], want)
		}
	}

	rec = ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "shortlist"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("exhausted check status = %d, want 429", rec.Code)
	}
	verdict := decodeVerdict(t, rec)
	if verdict["reason"] != "quota_exceeded" {
		t.Fatalf("reason = %v, want quota_exceeded", verdict["reason"])
	}

	// bias_audit is not part of the trial plan.
	rec = ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "bias_audit"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled feature status = %d, want 403", rec.Code)
	}
}

func TestGateCheckEndpointLockedPilot(t *testing.T) {
	ts := newTestServer(t)
	orgID := ts.createOrg(t, "Globex")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/organizations/%s/lifecycle/pilot", orgID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start pilot status = %d, body %s", rec.Code, rec.Body.String())
	}

	ts.clock.Advance(31 * 24 * time.Hour)

	rec = ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "bias_audit"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("locked check status = %d, want 402, body %s", rec.Code, rec.Body.String())
	}
	verdict := decodeVerdict(t, rec)
	if verdict["reason"] != "lifecycle_locked" {
		t.Fatalf("reason = %v, want lifecycle_locked", verdict["reason"])
	}
	if verdict["detail"] == nil || verdict["detail"] == "" {
		t.Fatal("locked denial must carry an unlock hint")
	}
}

func TestGateCheckEndpointValidation(t *testing.T) {
	ts := newTestServer(t)
	orgID := ts.createOrg(t, "Initech")

	rec := ts.do(t, http.MethodPost, "/api/gate/check", "", gin.H{"feature_key": "shortlist"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing org header status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "time_travel"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown feature status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/gate/check", "not-a-snowflake", gin.H{"feature_key": "shortlist"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad org header status = %d, want 400", rec.Code)
	}
}

func TestBillingConversionWebhook(t *testing.T) {
	ts := newTestServer(t)
	orgID := ts.createOrg(t, "Umbrella")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/organizations/%s/lifecycle/pilot", orgID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start pilot status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/billing/webhooks/conversion", "", gin.H{
		"org_id":      orgID,
		"billing_ref": "inv_42",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("conversion status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(lifecycledomain.StatusPaidActive) {
		t.Fatalf("status = %q, want %q", resp.Status, lifecycledomain.StatusPaidActive)
	}

	// Redelivery is harmless.
	rec = ts.do(t, http.MethodPost, "/api/billing/webhooks/conversion", "", gin.H{
		"org_id":      orgID,
		"billing_ref": "inv_42",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivered conversion status = %d", rec.Code)
	}

	// Conversion makes the tenant immune to pilot expiry.
	ts.clock.Advance(60 * 24 * time.Hour)
	rec = ts.do(t, http.MethodGet, "/api/lifecycle", orgID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get lifecycle status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(lifecycledomain.StatusPaidActive) {
		t.Fatalf("status after pilot end = %q, want %q", resp.Status, lifecycledomain.StatusPaidActive)
	}
}

func TestListEntitlementsAndUsage(t *testing.T) {
	ts := newTestServer(t)
	orgID := ts.createOrg(t, "Hooli")

	rec := ts.do(t, http.MethodGet, "/api/entitlements", orgID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("entitlements status = %d, body %s", rec.Code, rec.Body.String())
	}
	var entResp struct {
		Entitlements []struct {
			FeatureKey string `json:"feature_key"`
			Enabled    bool   `json:"enabled"`
		} `json:"entitlements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entResp.Entitlements) == 0 {
		t.Fatal("expected materialized entitlement rows for a fresh org")
	}

	if rec := ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "shortlist"}); rec.Code != http.StatusOK {
		t.Fatalf("gate check status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/usage", orgID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage status = %d", rec.Code)
	}
	var usageResp struct {
		Usage []struct {
			FeatureKey string `json:"feature_key"`
			Used       int64  `json:"used"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &usageResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(usageResp.Usage) != 1 || usageResp.Usage[0].Used != 1 {
		t.Fatalf("usage rows = %+v, want one shortlist row with used=1", usageResp.Usage)
	}
}

func TestPurgeUsageEndpoint(t *testing.T) {
	ts := newTestServer(t)
	orgID := ts.createOrg(t, "Wayne Hiring")

	if rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/organizations/%s/lifecycle/trial", orgID), "", nil); rec.Code != http.StatusOK {
		t.Fatalf("start trial status = %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "shortlist"}); rec.Code != http.StatusOK {
		t.Fatalf("gate check status = %d", rec.Code)
	}
	ts.clock.Advance(3 * 24 * time.Hour)
	if rec := ts.do(t, http.MethodPost, "/api/gate/check", orgID, gin.H{"feature_key": "shortlist"}); rec.Code != http.StatusOK {
		t.Fatalf("gate check after advance status = %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/admin/usage/purge", "", gin.H{"retention_days": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("purge status = %d, body %s", rec.Code, rec.Body.String())
	}
	var purgeResp struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &purgeResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if purgeResp.Removed != 1 {
		t.Fatalf("removed = %d, want 1 stale counter row", purgeResp.Removed)
	}

	// The current day's counter survives the sweep.
	rec = ts.do(t, http.MethodGet, "/api/usage", orgID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage status = %d", rec.Code)
	}
	var usageResp struct {
		Usage []struct {
			Used int64 `json:"used"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &usageResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(usageResp.Usage) != 1 || usageResp.Usage[0].Used != 1 {
		t.Fatalf("usage rows = %+v, want the current day's row only", usageResp.Usage)
	}

	if rec := ts.do(t, http.MethodPost, "/api/admin/usage/purge", "", gin.H{"retention_days": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero retention status = %d, want 400", rec.Code)
	}
}
