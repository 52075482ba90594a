package services

import (
	"context"
	"errors"
	"log"

	"github.com/anjiri1684/property_manager/models"
	"github.com/anjiri1684/property_manager/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignResult struct {
	UnitID   uuid.UUID `json:"unit_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

type RemoveResult struct {
	UnitID        uuid.UUID `json:"unit_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	TenantRevoked bool      `json:"tenant_role_revoked"`
}

// OccupancyManager is the only writer of unit status/tenant and of tenant roles and
// rentals. Each change runs in one store transaction so the unit and the tenant are
// never observed half-updated.
type OccupancyManager struct {
	db        *gorm.DB
	directory Directory
}

func NewOccupancyManager(db *gorm.DB, directory Directory) *OccupancyManager {
	return &OccupancyManager{db: db, directory: directory}
}

func (m *OccupancyManager) AssignTenant(ctx context.Context, unitID uuid.UUID, tenantIdentifier string, phone *string) (*AssignResult, error) {
	unit, err := m.directory.FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Status != models.UnitVacant {
		return nil, newError(ErrConflict, ErrUnitNotVacant, "unit %s is %s", unit.ID, unit.Status)
	}

	tenant, err := m.directory.FindTenant(ctx, tenantIdentifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Kind: ErrNotFound, Reason: ErrTenantAccountRequired, Message: "no account for " + tenantIdentifier + ", the tenant must register first"}
		}
		return nil, err
	}

	var sanitizedPhone string
	if phone != nil && *phone != "" {
		if sanitizedPhone, err = payments.SanitizeMpesaNumber(*phone); err != nil {
			return nil, wrapError(ErrValidation, err, "invalid tenant phone")
		}
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, tenant.ID); err != nil {
			return err
		}

		res := tx.Model(&models.RentalUnit{}).
			Where("id = ? AND status = ?", unit.ID, models.UnitVacant).
			Updates(map[string]any{"status": models.UnitOccupied, "tenant_id": tenant.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrConflict, ErrUnitNotVacant, "unit %s was taken concurrently", unit.ID)
		}

		role := models.UserRole{UserID: tenant.ID, Role: models.RoleTenant}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
			return err
		}

		rental := models.TenantRental{UserID: tenant.ID, PropertyID: unit.PropertyID, UnitID: unit.ID}
		if err := tx.Create(&rental).Error; err != nil {
			return err
		}

		if sanitizedPhone != "" {
			if err := tx.Model(&models.User{}).Where("id = ?", tenant.ID).Update("phone", sanitizedPhone).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, transactionError(err, "assign tenant")
	}

	log.Printf("✅ Assigned tenant %s to unit %s", tenant.ID, unit.ID)
	return &AssignResult{UnitID: unit.ID, TenantID: tenant.ID}, nil
}

// RemoveTenant vacates the unit and drops the tenant's rental entry. The TENANT role is
// revoked only if a count of the tenant's rentals taken inside the same transaction is
// zero.
func (m *OccupancyManager) RemoveTenant(ctx context.Context, unitID uuid.UUID) (*RemoveResult, error) {
	unit, err := m.directory.FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Status != models.UnitOccupied || unit.TenantID == nil {
		return nil, newError(ErrConflict, ErrNoTenant, "unit %s has no tenant", unit.ID)
	}
	tenantID := *unit.TenantID

	var revoked bool
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, tenantID); err != nil {
			return err
		}

		res := tx.Model(&models.RentalUnit{}).
			Where("id = ? AND status = ? AND tenant_id = ?", unit.ID, models.UnitOccupied, tenantID).
			Updates(map[string]any{"status": models.UnitVacant, "tenant_id": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrConflict, ErrNoTenant, "unit %s changed occupant concurrently", unit.ID)
		}

		if err := tx.Where("user_id = ? AND unit_id = ?", tenantID, unit.ID).Delete(&models.TenantRental{}).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.TenantRental{}).Where("user_id = ?", tenantID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.Where("user_id = ? AND role = ?", tenantID, models.RoleTenant).Delete(&models.UserRole{}).Error; err != nil {
				return err
			}
			revoked = true
		}
		return nil
	})
	if err != nil {
		return nil, transactionError(err, "remove tenant")
	}

	log.Printf("✅ Removed tenant %s from unit %s (role revoked: %t)", tenantID, unit.ID, revoked)
	return &RemoveResult{UnitID: unit.ID, TenantID: tenantID, TenantRevoked: revoked}, nil
}

// ReconcileTenantRoles re-derives the TENANT role from rental membership for every user
// whose role and rentals disagree. It returns the number of users corrected.
func (m *OccupancyManager) ReconcileTenantRoles(ctx context.Context) (int, error) {
	db := m.db.WithContext(ctx)

	var missing []uuid.UUID
	if err := db.Model(&models.TenantRental{}).
		Distinct("user_id").
		Where("user_id NOT IN (?)", db.Model(&models.UserRole{}).Select("user_id").Where("role = ?", models.RoleTenant)).
		Pluck("user_id", &missing).Error; err != nil {
		return 0, wrapError(ErrTransactionAborted, err, "failed to scan tenants without role")
	}

	var orphaned []uuid.UUID
	if err := db.Model(&models.UserRole{}).
		Where("role = ? AND user_id NOT IN (?)", models.RoleTenant, db.Model(&models.TenantRental{}).Select("user_id")).
		Pluck("user_id", &orphaned).Error; err != nil {
		return 0, wrapError(ErrTransactionAborted, err, "failed to scan roles without rentals")
	}

	fixed := 0
	for _, userID := range append(missing, orphaned...) {
		changed, err := m.reconcileUser(ctx, userID)
		if err != nil {
			log.Printf("🔥 Failed to reconcile tenant role for %s: %v", userID, err)
			continue
		}
		if changed {
			fixed++
		}
	}
	if fixed > 0 {
		log.Printf("Reconciled tenant role for %d user(s).", fixed)
	}
	return fixed, nil
}

func (m *OccupancyManager) reconcileUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	changed := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, userID); err != nil {
			return err
		}
		var rentals, roles int64
		if err := tx.Model(&models.TenantRental{}).Where("user_id = ?", userID).Count(&rentals).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.UserRole{}).Where("user_id = ? AND role = ?", userID, models.RoleTenant).Count(&roles).Error; err != nil {
			return err
		}

		switch {
		case rentals > 0 && roles == 0:
			changed = true
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserRole{UserID: userID, Role: models.RoleTenant}).Error
		case rentals == 0 && roles > 0:
			changed = true
			return tx.Where("user_id = ? AND role = ?", userID, models.RoleTenant).Delete(&models.UserRole{}).Error
		}
		return nil
	})
	return changed, err
}

// lockUser serialises occupancy changes for one tenant. SQLite ignores the row lock and
// serialises writers itself.
func lockUser(tx *gorm.DB, userID uuid.UUID) error {
	var user models.User
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&user, "id = ?", userID).Error
}

func transactionError(err error, op string) error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return wrapError(ErrConflict, err, "%s conflicted with a concurrent change", op)
	}
	log.Printf("🔥 %s transaction aborted: %v", op, err)
	return wrapError(ErrTransactionAborted, err, "%s transaction aborted", op)
}
