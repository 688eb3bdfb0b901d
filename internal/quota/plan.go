package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/storechat/admission/internal/audit"
	"github.com/storechat/admission/internal/models"
	"github.com/storechat/admission/internal/plans"
	"github.com/storechat/admission/internal/tenant"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTrialTarget is returned when an upgrade names the trial plan.
var ErrTrialTarget = errors.New("quota: cannot move a tenant onto the trial plan")

// UpgradePlan moves tenantID to planName. Quota, features and expiry change in one
// transaction; usage counters are left untouched. A trial tenant becomes active.
func (m *Manager) UpgradePlan(ctx context.Context, tenantID, planName string) error {
	plan, err := plans.Lookup(planName)
	if err != nil {
		return err
	}
	if plan.Trial {
		return ErrTrialTarget
	}

	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	var previous models.Tenant
	errTx := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("tenant_id = ?", tenantID).Take(&previous).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return tenant.ErrNotFound
			}
			return errFind
		}
		updates := map[string]any{
			"plan":       plan.Name,
			"quota":      datatypes.NewJSONType(plan.Limits),
			"features":   datatypes.JSONSlice[string](plan.Features),
			"expires_at": nil,
			"updated_at": m.now(),
		}
		if previous.Status == models.TenantStatusTrial || previous.Status == models.TenantStatusExpired {
			updates["status"] = models.TenantStatusActive
		}
		return tx.Model(&models.Tenant{}).Where("tenant_id = ?", tenantID).Updates(updates).Error
	})
	if errTx != nil {
		if errors.Is(errTx, tenant.ErrNotFound) {
			return tenant.ErrNotFound
		}
		return fmt.Errorf("quota: upgrade plan: %w", errTx)
	}
	m.tenants.Invalidate(ctx, tenantID)

	m.sink.LogEvent(audit.Entry{
		TenantID: tenantID,
		Type:     audit.EventPlanChanged,
		Data:     map[string]any{"from": previous.Plan, "to": plan.Name},
	})
	if previous.Status == models.TenantStatusTrial || previous.Status == models.TenantStatusExpired {
		m.sink.LogEvent(audit.Entry{
			TenantID: tenantID,
			Type:     audit.EventTrialConverted,
			Data:     map[string]any{"plan": plan.Name},
		})
	}
	return nil
}
