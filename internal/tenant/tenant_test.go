package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/kvstore"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/plans"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *recordingSink) LogEvent(entry audit.Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...)
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func setupTenantDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:tenant_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(
		&models.Tenant{}, &models.TrialToken{},
		&models.Document{}, &models.KnowledgeIndex{}, &models.Conversation{},
	); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

type fixture struct {
	db        *gorm.DB
	store     *Store
	validator *Validator
	sink      *recordingSink
}

func newFixture(t *testing.T, cache kvstore.Store) *fixture {
	t.Helper()
	db := setupTenantDB(t)
	sink := &recordingSink{}
	now := func() time.Time { return testNow }
	store := NewStore(db, StoreOptions{Cache: cache, Sink: sink, Now: now})
	return &fixture{
		db:        db,
		store:     store,
		validator: NewValidator(store, ValidatorOptions{Sink: sink, Now: now}),
		sink:      sink,
	}
}

func (f *fixture) createTenant(t *testing.T, id string, status models.TenantStatus, expiresAt *time.Time) {
	t.Helper()
	plan, _ := plans.Lookup(plans.Starter)
	row := models.Tenant{
		TenantID:  id,
		Name:      "shop",
		Status:    status,
		Plan:      plan.Name,
		Quota:     datatypes.NewJSONType(plan.Limits),
		Features:  datatypes.JSONSlice[string](plan.Features),
		ExpiresAt: expiresAt,
	}
	if errCreate := f.db.Create(&row).Error; errCreate != nil {
		t.Fatalf("create tenant: %v", errCreate)
	}
}

const (
	tenantA = "tn_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tenantB = "tn_bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func expectReason(t *testing.T, err error, want admission.Reason) {
	t.Helper()
	got, ok := admission.ReasonOf(err)
	if !ok {
		t.Fatalf("expected denial %s, got %v", want, err)
	}
	if got != want {
		t.Fatalf("expected reason %s, got %s (%v)", want, got, err)
	}
}

func expectSingleEvent(t *testing.T, sink *recordingSink, want audit.EventType) audit.Entry {
	t.Helper()
	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit event, got %d: %+v", len(entries), entries)
	}
	if entries[0].Type != want {
		t.Fatalf("expected %s event, got %s", want, entries[0].Type)
	}
	return entries[0]
}

func TestValidateTenantAccessAllowsActiveAndTrialTenants(t *testing.T) {
	f := newFixture(t, nil)
	future := testNow.Add(time.Hour)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	f.createTenant(t, tenantB, models.TenantStatusTrial, &future)

	for _, id := range []string{tenantA, tenantB} {
		if err := f.validator.ValidateTenantAccess(context.Background(), id, OperationContext{Operation: "query"}); err != nil {
			t.Fatalf("expected %s admitted, got %v", id, err)
		}
	}
	if len(f.sink.snapshot()) != 0 {
		t.Fatalf("expected no audit events on allow")
	}
}

func TestValidateTenantAccessRejectsMalformedIDs(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"", "tn_short", "TN_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "tn_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa' OR 1=1 --"} {
		f.sink.reset()
		err := f.validator.ValidateTenantAccess(context.Background(), id, OperationContext{})
		var validation *admission.ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("expected ValidationError for %q, got %v", id, err)
		}
		entry := expectSingleEvent(t, f.sink, audit.EventInvalidTenantFormat)
		if entry.TenantID != "" || entry.Sensitive["tenant_id"] != id {
			t.Fatalf("expected malformed id to be hashed, not stored: %+v", entry)
		}
	}
}

func TestValidateTenantAccessUnknownTenant(t *testing.T) {
	f := newFixture(t, nil)
	err := f.validator.ValidateTenantAccess(context.Background(), tenantA, OperationContext{})
	var notFound *admission.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	expectSingleEvent(t, f.sink, audit.EventUnauthorizedAccess)
}

func TestValidateTenantAccessDeniesInactiveStatuses(t *testing.T) {
	statuses := []models.TenantStatus{
		models.TenantStatusPending, models.TenantStatusProvisioning, models.TenantStatusSuspended,
		models.TenantStatusExpired, models.TenantStatusDeprovisioning, models.TenantStatusDeleted,
	}
	for _, status := range statuses {
		f := newFixture(t, nil)
		f.createTenant(t, tenantA, status, nil)
		err := f.validator.ValidateTenantAccess(context.Background(), tenantA, OperationContext{})
		expectReason(t, err, admission.ReasonTenantInactive)
		expectSingleEvent(t, f.sink, audit.EventUnauthorizedAccess)
	}
}

func TestValidateTenantAccessDeniesExpiredTrialEvenWhenActive(t *testing.T) {
	f := newFixture(t, nil)
	past := testNow.Add(-time.Minute)
	f.createTenant(t, tenantA, models.TenantStatusActive, &past)

	err := f.validator.ValidateTenantAccess(context.Background(), tenantA, OperationContext{})
	expectReason(t, err, admission.ReasonTrialExpired)
	expectSingleEvent(t, f.sink, audit.EventTrialExpired)
}

func TestValidateTenantAccessFailsClosedOnStoreError(t *testing.T) {
	f := newFixture(t, nil)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	sqlDB, _ := f.db.DB()
	_ = sqlDB.Close()

	err := f.validator.ValidateTenantAccess(context.Background(), tenantA, OperationContext{})
	var unavailable *admission.StoreUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	expectSingleEvent(t, f.sink, audit.EventStoreUnavailable)
}

func TestValidateResourceOwnership(t *testing.T) {
	f := newFixture(t, nil)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	f.createTenant(t, tenantB, models.TenantStatusActive, nil)
	if errCreate := f.db.Create(&models.Document{ID: "doc-a", TenantID: tenantA}).Error; errCreate != nil {
		t.Fatalf("create document: %v", errCreate)
	}
	if errCreate := f.db.Create(&models.KnowledgeIndex{ID: "idx-b", TenantID: tenantB}).Error; errCreate != nil {
		t.Fatalf("create index: %v", errCreate)
	}
	if errCreate := f.db.Create(&models.Conversation{ID: "conv-a", TenantID: tenantA}).Error; errCreate != nil {
		t.Fatalf("create conversation: %v", errCreate)
	}
	ctx := context.Background()

	if err := f.validator.ValidateResourceOwnership(ctx, tenantA, ResourceDocument, "doc-a"); err != nil {
		t.Fatalf("expected owner admitted, got %v", err)
	}
	if err := f.validator.ValidateResourceOwnership(ctx, tenantA, ResourceConversation, "conv-a"); err != nil {
		t.Fatalf("expected owner admitted, got %v", err)
	}

	f.sink.reset()
	err := f.validator.ValidateResourceOwnership(ctx, tenantA, ResourceKnowledgeIndex, "idx-b")
	if severity, ok := admission.IsAccessViolation(err); !ok || severity != admission.SeverityCritical {
		t.Fatalf("expected CRITICAL access violation, got %v", err)
	}
	entry := expectSingleEvent(t, f.sink, audit.EventCrossTenantAccessAttempt)
	if entry.Severity != audit.SeverityCritical || entry.Sensitive["resource_id"] != "idx-b" {
		t.Fatalf("unexpected cross-tenant event %+v", entry)
	}

	f.sink.reset()
	err = f.validator.ValidateResourceOwnership(ctx, tenantA, ResourceDocument, "doc-missing")
	expectReason(t, err, admission.ReasonResourceNotFound)
	expectSingleEvent(t, f.sink, audit.EventUnauthorizedAccess)

	f.sink.reset()
	err = f.validator.ValidateResourceOwnership(ctx, tenantA, "invoice", "inv-1")
	expectReason(t, err, admission.ReasonInvalidResource)
	expectSingleEvent(t, f.sink, audit.EventUnauthorizedAccess)

	f.sink.reset()
	err = f.validator.ValidateResourceOwnership(ctx, tenantA, ResourceDocument, strings.Repeat("x", 129))
	expectReason(t, err, admission.ReasonInvalidResource)
}

func TestValidateTrialToken(t *testing.T) {
	f := newFixture(t, nil)
	f.createTenant(t, tenantA, models.TenantStatusTrial, nil)
	f.createTenant(t, tenantB, models.TenantStatusTrial, nil)
	ctx := context.Background()

	tokenA, err := f.store.IssueTrialToken(ctx, tenantA, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tokenB, err := f.store.IssueTrialToken(ctx, tenantB, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.sink.reset()

	if err := f.validator.ValidateTrialToken(ctx, tenantA, tokenA.Token); err != nil {
		t.Fatalf("expected token admitted, got %v", err)
	}

	err = f.validator.ValidateTrialToken(ctx, tenantA, tokenB.Token)
	if severity, ok := admission.IsAccessViolation(err); !ok || severity != admission.SeverityHigh {
		t.Fatalf("expected HIGH access violation, got %v", err)
	}
	entry := expectSingleEvent(t, f.sink, audit.EventTrialTokenRejected)
	if entry.Severity != audit.SeverityHigh {
		t.Fatalf("expected HIGH severity event, got %s", entry.Severity)
	}

	f.sink.reset()
	err = f.validator.ValidateTrialToken(ctx, tenantA, "tt_short")
	expectReason(t, err, admission.ReasonInvalidTrialToken)
	expectSingleEvent(t, f.sink, audit.EventTrialTokenRejected)

	err = f.validator.ValidateTrialToken(ctx, tenantA, "tt_00000000000000000000000000000000")
	expectReason(t, err, admission.ReasonTrialTokenNotFound)

	if errUpdate := f.db.Model(&models.TrialToken{}).Where("token = ?", tokenA.Token).Update("active", false).Error; errUpdate != nil {
		t.Fatalf("deactivate: %v", errUpdate)
	}
	err = f.validator.ValidateTrialToken(ctx, tenantA, tokenA.Token)
	expectReason(t, err, admission.ReasonTrialTokenInactive)

	if errUpdate := f.db.Model(&models.TrialToken{}).Where("token = ?", tokenB.Token).Update("expires_at", testNow.Add(-time.Second)).Error; errUpdate != nil {
		t.Fatalf("expire: %v", errUpdate)
	}
	err = f.validator.ValidateTrialToken(ctx, tenantB, tokenB.Token)
	expectReason(t, err, admission.ReasonTrialTokenExpired)
}

func TestIssueTrialTokenReplacesPreviousToken(t *testing.T) {
	f := newFixture(t, nil)
	f.createTenant(t, tenantA, models.TenantStatusTrial, nil)
	ctx := context.Background()

	first, err := f.store.IssueTrialToken(ctx, tenantA, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := f.store.IssueTrialToken(ctx, tenantA, time.Hour)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if first.Token == second.Token {
		t.Fatalf("expected a fresh token")
	}
	var count int64
	f.db.Model(&models.TrialToken{}).Where("tenant_id = ?", tenantA).Count(&count)
	if count != 1 {
		t.Fatalf("expected one token per tenant, got %d", count)
	}
	if _, err := f.store.IssueTrialToken(ctx, tenantB, time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tenant, got %v", err)
	}
}

func TestProvisionTrialTenant(t *testing.T) {
	f := newFixture(t, nil)
	row, err := f.store.Provision(context.Background(), " Acme Shop ", plans.Trial, 7)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if row.Status != models.TenantStatusTrial || row.Name != "Acme Shop" {
		t.Fatalf("unexpected tenant %+v", row)
	}
	if row.ExpiresAt == nil || !row.ExpiresAt.Equal(testNow.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected expiry %v", row.ExpiresAt)
	}
	if row.Limits().QueriesPerDay != 100 {
		t.Fatalf("expected trial quota, got %+v", row.Limits())
	}
	expectSingleEvent(t, f.sink, audit.EventTrialStarted)

	stored, err := f.store.Get(context.Background(), row.TenantID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Limits().QueriesPerDay != 100 || len(stored.Features) == 0 {
		t.Fatalf("expected quota and features persisted, got %+v", stored)
	}
}

func TestProvisionRejectsUnknownPlan(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.store.Provision(context.Background(), "x", "gold", 0); err == nil {
		t.Fatalf("expected error for unknown plan")
	}
}

func TestSetStatusInvalidatesCache(t *testing.T) {
	srv := miniredis.RunT(t)
	cache, err := kvstore.NewRedisStore(kvstore.RedisOptions{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	f := newFixture(t, cache)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	ctx := context.Background()

	if err := f.validator.ValidateTenantAccess(ctx, tenantA, OperationContext{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !srv.Exists(cacheKey(tenantA)) {
		t.Fatalf("expected tenant config cached")
	}

	if err := f.store.SetStatus(ctx, tenantA, models.TenantStatusSuspended); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if srv.Exists(cacheKey(tenantA)) {
		t.Fatalf("expected cache invalidated after write")
	}
	err = f.validator.ValidateTenantAccess(ctx, tenantA, OperationContext{})
	expectReason(t, err, admission.ReasonTenantInactive)

	events := f.sink.snapshot()
	if events[0].Type != audit.EventTenantSuspended {
		t.Fatalf("expected TENANT_SUSPENDED event first, got %s", events[0].Type)
	}
}

func TestGetDoesNotCacheRowLoadedBeforeInvalidate(t *testing.T) {
	srv := miniredis.RunT(t)
	cache, err := kvstore.NewRedisStore(kvstore.RedisOptions{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	f := newFixture(t, cache)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	ctx := context.Background()

	// Suspend the tenant after the read but before the cache fill.
	suspended := false
	f.store.loaded = func(string) {
		if suspended {
			return
		}
		suspended = true
		if errStatus := f.store.SetStatus(ctx, tenantA, models.TenantStatusSuspended); errStatus != nil {
			t.Errorf("suspend: %v", errStatus)
		}
	}

	row, err := f.store.Get(ctx, tenantA)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Status != models.TenantStatusActive {
		t.Fatalf("expected the in-flight read to see the old row, got %s", row.Status)
	}
	if srv.Exists(cacheKey(tenantA)) {
		t.Fatalf("expected the stale row to stay out of the cache")
	}

	err = f.validator.ValidateTenantAccess(ctx, tenantA, OperationContext{})
	expectReason(t, err, admission.ReasonTenantInactive)
	if !srv.Exists(cacheKey(tenantA)) {
		t.Fatalf("expected a fresh load to cache again")
	}
}

func TestGetFallsThroughWhenCacheDown(t *testing.T) {
	srv := miniredis.RunT(t)
	cache, err := kvstore.NewRedisStore(kvstore.RedisOptions{Addr: srv.Addr(), DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	f := newFixture(t, cache)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	srv.Close()

	if err := f.validator.ValidateTenantAccess(context.Background(), tenantA, OperationContext{}); err != nil {
		t.Fatalf("expected db fallback to admit, got %v", err)
	}
}

func TestSetStatusAuditsLifecycleTransitions(t *testing.T) {
	f := newFixture(t, nil)
	f.createTenant(t, tenantA, models.TenantStatusActive, nil)
	ctx := context.Background()

	cases := []struct {
		status models.TenantStatus
		want   audit.EventType
	}{
		{models.TenantStatusSuspended, audit.EventTenantSuspended},
		{models.TenantStatusActive, audit.EventTenantActivated},
		{models.TenantStatusExpired, audit.EventTrialExpired},
		{models.TenantStatusPending, audit.EventTenantStatusChanged},
		{models.TenantStatusProvisioning, audit.EventTenantStatusChanged},
		{models.TenantStatusDeprovisioning, audit.EventTenantStatusChanged},
		{models.TenantStatusDeleted, audit.EventTenantStatusChanged},
	}
	for _, tc := range cases {
		f.sink.reset()
		if err := f.store.SetStatus(ctx, tenantA, tc.status); err != nil {
			t.Fatalf("set %s: %v", tc.status, err)
		}
		entry := expectSingleEvent(t, f.sink, tc.want)
		if entry.Data["status"] != string(tc.status) {
			t.Fatalf("%s: expected status in event data, got %v", tc.status, entry.Data)
		}
	}
}

func TestSetStatusUnknownTenant(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.store.SetStatus(context.Background(), tenantA, models.TenantStatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.store.SetStatus(context.Background(), tenantA, "bogus"); err == nil {
		t.Fatalf("expected invalid status error")
	}
}
