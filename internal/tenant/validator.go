package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/storechat/admission/internal/admission"
	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/metrics"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/security"
	"gorm.io/gorm"
)

// DefaultStoreTimeout bounds the store calls of one validation.
const DefaultStoreTimeout = 2 * time.Second

// OperationContext describes the operation a tenant is being admitted for.
// Setting ResourceType adds the ownership stage.
type OperationContext struct {
	Operation    string
	ResourceType string
	ResourceID   string
	RequestID    string
	ClientIP     string
}

type stage int

const (
	stageFormat stage = iota
	stageExistence
	stageStatus
	stageOwnership
)

func (s stage) String() string {
	switch s {
	case stageFormat:
		return "format"
	case stageExistence:
		return "existence"
	case stageStatus:
		return "status"
	case stageOwnership:
		return "ownership"
	default:
		return "unknown"
	}
}

type trialStage int

const (
	trialStageTenantFormat trialStage = iota
	trialStageTokenFormat
	trialStageLookup
	trialStageBinding
	trialStageActive
	trialStageExpiry
)

// Validator enforces tenant isolation. Every failure, including store errors, denies.
type Validator struct {
	store        *Store
	sink         audit.Sink
	storeTimeout time.Duration
	now          func() time.Time
}

// ValidatorOptions configures a Validator.
type ValidatorOptions struct {
	Sink         audit.Sink
	StoreTimeout time.Duration
	Now          func() time.Time
}

// NewValidator creates a Validator over store.
func NewValidator(store *Store, opts ValidatorOptions) *Validator {
	if opts.Sink == nil {
		opts.Sink = audit.Discard{}
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Validator{store: store, sink: opts.Sink, storeTimeout: opts.StoreTimeout, now: opts.Now}
}

// ValidateTenantAccess admits tenantID for op or returns the denial.
func (v *Validator) ValidateTenantAccess(ctx context.Context, tenantID string, op OperationContext) error {
	ctx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	defer cancel()

	stages := []stage{stageFormat, stageExistence, stageStatus}
	if op.ResourceType != "" || op.ResourceID != "" {
		stages = append(stages, stageOwnership)
	}

	var tenant *models.Tenant
	for _, st := range stages {
		var err error
		switch st {
		case stageFormat:
			if !security.IsValidTenantID(tenantID) {
				err = &admission.ValidationError{Reason: admission.ReasonInvalidTenantID, Field: "tenant_id"}
			}
		case stageExistence:
			tenant, err = v.loadTenant(ctx, tenantID)
		case stageStatus:
			err = v.checkStatus(tenant)
		case stageOwnership:
			err = v.checkOwnership(ctx, tenantID, op.ResourceType, op.ResourceID)
		}
		if err != nil {
			v.deny(tenantID, st.String(), op, err)
			return err
		}
	}
	metrics.Observe("validator", true, "")
	return nil
}

// ValidateResourceOwnership admits tenantID only if it owns the resource.
func (v *Validator) ValidateResourceOwnership(ctx context.Context, tenantID, resourceType, resourceID string) error {
	return v.ValidateTenantAccess(ctx, tenantID, OperationContext{
		Operation:    "resource_access",
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
}

// ValidateTrialToken checks that token is a live trial token bound to tenantID.
func (v *Validator) ValidateTrialToken(ctx context.Context, tenantID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	defer cancel()

	var row models.TrialToken
	stages := []trialStage{
		trialStageTenantFormat, trialStageTokenFormat, trialStageLookup,
		trialStageBinding, trialStageActive, trialStageExpiry,
	}
	for _, st := range stages {
		var err error
		switch st {
		case trialStageTenantFormat:
			if !security.IsValidTenantID(tenantID) {
				err = &admission.ValidationError{Reason: admission.ReasonInvalidTenantID, Field: "tenant_id"}
			}
		case trialStageTokenFormat:
			if !security.IsValidTrialToken(token) {
				err = &admission.ValidationError{Reason: admission.ReasonInvalidTrialToken, Field: "trial_token"}
			}
		case trialStageLookup:
			errFind := v.store.db.WithContext(ctx).Where("token = ?", token).Take(&row).Error
			switch {
			case errors.Is(errFind, gorm.ErrRecordNotFound):
				err = &admission.NotFoundError{Reason: admission.ReasonTrialTokenNotFound, Kind: "trial token"}
			case errFind != nil:
				err = &admission.StoreUnavailable{Store: "tenant", Err: errFind}
			}
		case trialStageBinding:
			if row.TenantID != tenantID {
				err = &admission.AccessViolation{Reason: admission.ReasonTrialTokenMismatch, Severity: admission.SeverityHigh}
			}
		case trialStageActive:
			if !row.Active {
				err = &admission.StateError{Reason: admission.ReasonTrialTokenInactive}
			}
		case trialStageExpiry:
			if !v.now().Before(row.ExpiresAt) {
				err = &admission.StateError{Reason: admission.ReasonTrialTokenExpired}
			}
		}
		if err != nil {
			v.denyTrialToken(tenantID, token, err)
			return err
		}
	}
	metrics.Observe("trial_token", true, "")
	return nil
}

func (v *Validator) loadTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant, err := v.store.Get(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return nil, &admission.NotFoundError{Reason: admission.ReasonTenantNotFound, Kind: "tenant"}
	}
	if err != nil {
		return nil, &admission.StoreUnavailable{Store: "tenant", Err: err}
	}
	return tenant, nil
}

func (v *Validator) checkStatus(tenant *models.Tenant) error {
	if !tenant.Status.AllowsAccess() {
		return &admission.StateError{Reason: admission.ReasonTenantInactive, Status: string(tenant.Status)}
	}
	if tenant.TrialExpired(v.now()) {
		return &admission.StateError{Reason: admission.ReasonTrialExpired, Status: string(tenant.Status)}
	}
	return nil
}

func (v *Validator) checkOwnership(ctx context.Context, tenantID, resourceType, resourceID string) error {
	table, ok := ResourceTable(resourceType)
	if !ok {
		return &admission.ValidationError{Reason: admission.ReasonInvalidResource, Field: "resource_type"}
	}
	if resourceID == "" || len(resourceID) > maxResourceIDLength {
		return &admission.ValidationError{Reason: admission.ReasonInvalidResource, Field: "resource_id"}
	}

	var owner struct {
		TenantID string
	}
	errFind := v.store.db.WithContext(ctx).
		Table(table).
		Select("tenant_id").
		Where("id = ?", resourceID).
		Take(&owner).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return &admission.NotFoundError{Reason: admission.ReasonResourceNotFound, Kind: resourceType}
	}
	if errFind != nil {
		return &admission.StoreUnavailable{Store: "tenant", Err: errFind}
	}
	if owner.TenantID != tenantID {
		return &admission.AccessViolation{Reason: admission.ReasonCrossTenantResource, Severity: admission.SeverityCritical}
	}
	return nil
}

func (v *Validator) deny(tenantID, stageName string, op OperationContext, err error) {
	reason, _ := admission.ReasonOf(err)
	metrics.Observe("validator", false, string(reason))

	entry := audit.Entry{
		TenantID: tenantID,
		Type:     audit.EventUnauthorizedAccess,
		Severity: audit.SeverityWarning,
		Data: map[string]any{
			"stage":     stageName,
			"reason":    string(reason),
			"operation": op.Operation,
		},
		Sensitive: map[string]string{},
		Metadata:  requestMetadata(op.RequestID),
	}
	if op.ResourceType != "" {
		entry.Data["resource_type"] = op.ResourceType
	}
	if op.ResourceID != "" {
		entry.Sensitive["resource_id"] = op.ResourceID
	}
	if op.ClientIP != "" {
		entry.Sensitive["client_ip"] = op.ClientIP
	}

	var unavailable *admission.StoreUnavailable
	switch {
	case reason == admission.ReasonInvalidTenantID:
		entry.Type = audit.EventInvalidTenantFormat
		entry.TenantID = ""
		entry.Sensitive["tenant_id"] = tenantID
	case reason == admission.ReasonCrossTenantResource:
		entry.Type = audit.EventCrossTenantAccessAttempt
		entry.Severity = audit.SeverityCritical
	case reason == admission.ReasonTrialExpired:
		entry.Type = audit.EventTrialExpired
	case errors.As(err, &unavailable):
		entry.Type = audit.EventStoreUnavailable
		entry.Severity = audit.SeverityHigh
		entry.Data["store"] = unavailable.Store
	}
	v.sink.LogEvent(entry)
}

func (v *Validator) denyTrialToken(tenantID, token string, err error) {
	reason, _ := admission.ReasonOf(err)
	metrics.Observe("trial_token", false, string(reason))

	entry := audit.Entry{
		TenantID:  tenantID,
		Type:      audit.EventTrialTokenRejected,
		Severity:  audit.SeverityWarning,
		Data:      map[string]any{"reason": string(reason)},
		Sensitive: map[string]string{"trial_token": token},
	}
	if !security.IsValidTenantID(tenantID) {
		entry.TenantID = ""
		entry.Sensitive["tenant_id"] = tenantID
	}
	if severity, ok := admission.IsAccessViolation(err); ok {
		entry.Severity = audit.Severity(severity)
	}
	var unavailable *admission.StoreUnavailable
	if errors.As(err, &unavailable) {
		entry.Type = audit.EventStoreUnavailable
		entry.Severity = audit.SeverityHigh
		entry.Data["store"] = unavailable.Store
	}
	v.sink.LogEvent(entry)
}

func requestMetadata(requestID string) map[string]any {
	if requestID == "" {
		return nil
	}
	return map[string]any{"request_id": requestID}
}
