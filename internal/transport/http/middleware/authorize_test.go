package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/audit"
	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

type captureAuditRepo struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	written chan struct{}
}

func newCaptureAuditRepo() *captureAuditRepo {
	return &captureAuditRepo{written: make(chan struct{}, 16)}
}

func (f *captureAuditRepo) Insert(_ context.Context, record domain.AuditRecord) error {
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	f.written <- struct{}{}
	return nil
}

func (f *captureAuditRepo) List(context.Context, port.AuditFilter) ([]domain.AuditRecord, int64, error) {
	return nil, 0, nil
}

func (f *captureAuditRepo) ListByResource(context.Context, string, string, int, int) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (f *captureAuditRepo) ListByPrincipal(context.Context, string, int, int) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (f *captureAuditRepo) Stats(context.Context, *time.Time, *time.Time) (*port.AuditStats, error) {
	return nil, nil
}

func (f *captureAuditRepo) all() []domain.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *captureAuditRepo) waitFor(t *testing.T, n int) []domain.AuditRecord {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.written:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for audit record %d of %d", i+1, n)
		}
	}
	return f.all()
}

type gateGrantRepo struct {
	active    []domain.RoleRef
	activeErr error
}

func (s *gateGrantRepo) Assign(context.Context, domain.RoleGrant) error { return nil }
func (s *gateGrantRepo) Revoke(context.Context, string, string) error   { return nil }
func (s *gateGrantRepo) ListActive(context.Context, string, time.Time) ([]domain.RoleRef, error) {
	return s.active, s.activeErr
}
func (s *gateGrantRepo) ListByPrincipal(context.Context, string) ([]domain.RoleGrant, error) {
	return nil, nil
}

type gatePermissionRepo struct {
	byRole map[string][]domain.Permission
}

func (s *gatePermissionRepo) Upsert(context.Context, domain.Permission) (bool, error) {
	return false, nil
}
func (s *gatePermissionRepo) GetByKey(context.Context, string, string) (*domain.Permission, error) {
	return nil, nil
}
func (s *gatePermissionRepo) List(context.Context) ([]domain.Permission, error) { return nil, nil }
func (s *gatePermissionRepo) ListByRoleIDs(_ context.Context, roleIDs []string) ([]domain.Permission, error) {
	var out []domain.Permission
	for _, id := range roleIDs {
		out = append(out, s.byRole[id]...)
	}
	return out, nil
}

type gateFixture struct {
	router   *gin.Engine
	repo     *captureAuditRepo
	pipeline *audit.Pipeline
}

func newGateFixture(t *testing.T, grants *gateGrantRepo, permissions *gatePermissionRepo, principal *domain.Principal) (*gateFixture, *Gate) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newCaptureAuditRepo()
	pipeline := audit.NewPipeline(repo, nil, nil, testAuditSettings(), zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pipeline.Close(ctx)
	})

	resolver := usecase.NewResolver(grants, permissions, nil, nil, zap.NewNop(), usecase.ResolverConfig{})
	gate := NewGate(resolver, pipeline, zap.NewNop())

	router := gin.New()
	router.Use(gin.Recovery())
	if principal != nil {
		router.Use(func(c *gin.Context) {
			c.Set(PrincipalKey, principal)
			c.Next()
		})
	}

	return &gateFixture{router: router, repo: repo, pipeline: pipeline}, gate
}

func testAuditSettings() config.AuditSettings {
	return config.AuditSettings{
		QueueSize:    16,
		WriteTimeout: time.Second,
		DrainTimeout: time.Second,
	}
}

func TestGateAllowsAndRecordsOnce(t *testing.T) {
	grants := &gateGrantRepo{active: []domain.RoleRef{{ID: "role-cm", Name: domain.RoleContentManager}}}
	permissions := &gatePermissionRepo{byRole: map[string][]domain.Permission{
		"role-cm": {{ID: "p1", Resource: domain.ResourceProtocols, Action: domain.ActionUpdate}},
	}}
	principal := &domain.Principal{ID: "alice", Email: "alice@example.com"}
	fixture, gate := newGateFixture(t, grants, permissions, principal)

	fixture.router.PUT("/protocols/:id",
		gate.RequirePermission(domain.ResourceProtocols, domain.ActionUpdate),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/protocols/42", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	records := fixture.repo.waitFor(t, 1)
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}

	record := records[0]
	if record.Status != domain.AuditStatusSuccess {
		t.Fatalf("unexpected status: %s", record.Status)
	}
	if record.Resource != domain.ResourceProtocols || record.Action != domain.ActionUpdate {
		t.Fatalf("unexpected operation: %s:%s", record.Resource, record.Action)
	}
	if record.ResourceID == nil || *record.ResourceID != "42" {
		t.Fatalf("resource id not captured: %v", record.ResourceID)
	}
	if record.PrincipalID != "alice" {
		t.Fatalf("unexpected principal: %s", record.PrincipalID)
	}
	if record.Detail["status_code"] != float64(200) && record.Detail["status_code"] != 200 {
		t.Fatalf("status code not in detail: %v", record.Detail["status_code"])
	}
}

func TestGateDeniedRecordsOnceAndNamesPermission(t *testing.T) {
	grants := &gateGrantRepo{}
	principal := &domain.Principal{ID: "bob", Email: "bob@example.com"}
	fixture, gate := newGateFixture(t, grants, &gatePermissionRepo{}, principal)

	handlerRan := false
	fixture.router.DELETE("/coupons/:id",
		gate.RequirePermission(domain.ResourceCoupons, domain.ActionDelete),
		func(c *gin.Context) { handlerRan = true },
	)

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/coupons/7", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if handlerRan {
		t.Fatal("handler ran despite denial")
	}

	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal 403 body: %v", err)
	}
	if body.Error != "missing permission coupons:delete" {
		t.Fatalf("403 body does not name the permission: %q", body.Error)
	}

	records := fixture.repo.waitFor(t, 1)
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
	if records[0].Status != domain.AuditStatusDenied {
		t.Fatalf("unexpected status: %s", records[0].Status)
	}
}

func TestGateStorageOutageFailsClosed(t *testing.T) {
	grants := &gateGrantRepo{activeErr: errors.New("connection refused")}
	principal := &domain.Principal{ID: "bob"}
	fixture, gate := newGateFixture(t, grants, &gatePermissionRepo{}, principal)

	fixture.router.GET("/users",
		gate.RequirePermission(domain.ResourceUsers, domain.ActionRead),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	// The body must be indistinguishable from a plain denial.
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal 403 body: %v", err)
	}
	if body.Error != "missing permission users:read" {
		t.Fatalf("outage leaked into response: %q", body.Error)
	}

	records := fixture.repo.waitFor(t, 1)
	if records[0].Status != domain.AuditStatusFailed {
		t.Fatalf("expected failed record, got %s", records[0].Status)
	}
	if records[0].ErrorMessage == nil {
		t.Fatal("failed record missing error message")
	}
}

func TestGatePanicRecordsFailure(t *testing.T) {
	grants := &gateGrantRepo{active: []domain.RoleRef{{ID: "role-super", Name: domain.RoleSuperAdmin}}}
	principal := &domain.Principal{ID: "root"}
	fixture, gate := newGateFixture(t, grants, &gatePermissionRepo{}, principal)

	fixture.router.POST("/protocols",
		gate.RequirePermission(domain.ResourceProtocols, domain.ActionCreate),
		func(c *gin.Context) { panic("boom") },
	)

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/protocols", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovery, got %d", rr.Code)
	}

	records := fixture.repo.waitFor(t, 1)
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
	if records[0].Status != domain.AuditStatusFailed {
		t.Fatalf("unexpected status: %s", records[0].Status)
	}
	if got := records[0].Detail["status_code"]; got != 500 && got != float64(500) {
		t.Fatalf("expected recorded status_code 500, got %v", got)
	}
	if records[0].ErrorMessage == nil || *records[0].ErrorMessage != "handler panic" {
		t.Fatalf("unexpected error message: %v", records[0].ErrorMessage)
	}
}

func TestGateRejectsUnauthenticated(t *testing.T) {
	fixture, gate := newGateFixture(t, &gateGrantRepo{}, &gatePermissionRepo{}, nil)

	fixture.router.GET("/roles",
		gate.RequirePermission(domain.ResourceRoles, domain.ActionRead),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(fixture.repo.all()); got != 0 {
		t.Fatalf("unauthenticated request produced %d audit records", got)
	}
}

func TestGateRequireAnyPermission(t *testing.T) {
	grants := &gateGrantRepo{active: []domain.RoleRef{{ID: "role-granter", Name: "granter"}}}
	permissions := &gatePermissionRepo{byRole: map[string][]domain.Permission{
		"role-granter": {{ID: "p1", Resource: domain.ResourceRoles, Action: domain.ActionAssign}},
	}}
	principal := &domain.Principal{ID: "dave"}
	fixture, gate := newGateFixture(t, grants, permissions, principal)

	fixture.router.GET("/principals/:id/roles",
		gate.RequireAnyPermission(
			domain.PermissionKey{Resource: domain.ResourceRoles, Action: domain.ActionRead},
			domain.PermissionKey{Resource: domain.ResourceRoles, Action: domain.ActionAssign},
		),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/principals/eve/roles", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("holder of an alternative permission rejected: %d", rr.Code)
	}

	records := fixture.repo.waitFor(t, 1)
	record := records[0]
	if record.Resource != domain.ResourceRoles || record.Action != domain.ActionRead {
		t.Fatalf("record should be named after the first alternative, got %s:%s", record.Resource, record.Action)
	}
	accepted, ok := record.Detail["accepted_permissions"].([]any)
	if !ok || len(accepted) != 2 {
		t.Fatalf("accepted alternatives not recorded: %v", record.Detail["accepted_permissions"])
	}
}

func TestGateRequireRole(t *testing.T) {
	grants := &gateGrantRepo{active: []domain.RoleRef{{ID: "role-admin", Name: domain.RoleAdmin}}}
	principal := &domain.Principal{ID: "carol"}
	fixture, gate := newGateFixture(t, grants, &gatePermissionRepo{}, principal)

	fixture.router.GET("/admin-only", gate.RequireRole(domain.RoleAdmin),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	fixture.router.GET("/super-only", gate.RequireRole(domain.RoleSuperAdmin),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin-only", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("role holder rejected: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/super-only", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing role, got %d", rr.Code)
	}
}
