package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/plans"
	"github.com/storechat/admission/internal/security"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultTrialTokenTTL is the lifetime of a newly issued trial token.
const DefaultTrialTokenTTL = 7 * 24 * time.Hour

// Provision creates a tenant on planName. Trial plans start in the trial status with an expiry.
func (s *Store) Provision(ctx context.Context, name, planName string, trialDays int) (*models.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, errNilDB
	}
	plan, err := plans.Lookup(planName)
	if err != nil {
		return nil, err
	}
	tenantID, err := security.GenerateTenantID()
	if err != nil {
		return nil, err
	}

	status := models.TenantStatusActive
	if plan.Trial {
		status = models.TenantStatusTrial
	}
	row := models.Tenant{
		TenantID:  tenantID,
		Name:      strings.TrimSpace(name),
		Status:    status,
		Plan:      plan.Name,
		Quota:     datatypes.NewJSONType(plan.Limits),
		Features:  datatypes.JSONSlice[string](plan.Features),
		ExpiresAt: plan.ExpiresAt(s.now(), trialDays),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("tenant: create: %w", errCreate)
	}

	eventType := audit.EventTenantActivated
	if plan.Trial {
		eventType = audit.EventTrialStarted
	}
	s.sink.LogEvent(audit.Entry{
		TenantID: tenantID,
		Type:     eventType,
		Data:     map[string]any{"plan": plan.Name},
	})
	return &row, nil
}

// SetStatus moves tenantID to status.
func (s *Store) SetStatus(ctx context.Context, tenantID string, status models.TenantStatus) error {
	if s == nil || s.db == nil {
		return errNilDB
	}
	if !status.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidStatus, status)
	}
	res := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{"status": status, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("tenant: set status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.Invalidate(ctx, tenantID)

	var eventType audit.EventType
	switch status {
	case models.TenantStatusSuspended:
		eventType = audit.EventTenantSuspended
	case models.TenantStatusActive:
		eventType = audit.EventTenantActivated
	case models.TenantStatusExpired:
		eventType = audit.EventTrialExpired
	default:
		eventType = audit.EventTenantStatusChanged
	}
	s.sink.LogEvent(audit.Entry{
		TenantID: tenantID,
		Type:     eventType,
		Data:     map[string]any{"status": string(status)},
	})
	return nil
}

// IssueTrialToken creates a trial token for tenantID, replacing any previous one.
func (s *Store) IssueTrialToken(ctx context.Context, tenantID string, ttl time.Duration) (*models.TrialToken, error) {
	if s == nil || s.db == nil {
		return nil, errNilDB
	}
	if ttl <= 0 {
		ttl = DefaultTrialTokenTTL
	}
	token, err := security.GenerateTrialToken()
	if err != nil {
		return nil, err
	}
	row := models.TrialToken{
		Token:     token,
		TenantID:  tenantID,
		Active:    true,
		ExpiresAt: s.now().Add(ttl),
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.Tenant{}).Where("tenant_id = ?", tenantID).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count == 0 {
			return ErrNotFound
		}
		if errDelete := tx.Where("tenant_id = ?", tenantID).Delete(&models.TrialToken{}).Error; errDelete != nil {
			return errDelete
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		if errors.Is(errTx, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tenant: issue trial token: %w", errTx)
	}

	s.sink.LogEvent(audit.Entry{
		TenantID:  tenantID,
		Type:      audit.EventTrialTokenIssued,
		Data:      map[string]any{"expires_at": row.ExpiresAt.Format(time.RFC3339)},
		Sensitive: map[string]string{"trial_token": token},
	})
	return &row, nil
}
