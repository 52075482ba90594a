package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/anjiri1684/property_manager/models"
	"github.com/anjiri1684/property_manager/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newOccupancy(db *gorm.DB) *services.OccupancyManager {
	return services.NewOccupancyManager(db, services.NewGormDirectory(db))
}

func reloadUnit(t *testing.T, db *gorm.DB, unit models.RentalUnit) models.RentalUnit {
	t.Helper()
	var u models.RentalUnit
	require.NoError(t, db.First(&u, "id = ?", unit.ID).Error)
	return u
}

func reloadUser(t *testing.T, db *gorm.DB, user models.User) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.Preload("Roles").Preload("Rentals").First(&u, "id = ?", user.ID).Error)
	return u
}

func TestOccupancyManager_AssignTenant(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	tenant := seedUser(t, db, "jane@example.com", nil)

	res, err := m.AssignTenant(ctx, unit.ID, "Jane@Example.com", strPtr("0712 345 678"))
	require.NoError(t, err)
	assert.Equal(t, unit.ID, res.UnitID)
	assert.Equal(t, tenant.ID, res.TenantID)

	u := reloadUnit(t, db, unit)
	assert.Equal(t, models.UnitOccupied, u.Status)
	require.NotNil(t, u.TenantID)
	assert.Equal(t, tenant.ID, *u.TenantID)

	user := reloadUser(t, db, tenant)
	assert.True(t, user.HasRole(models.RoleTenant))
	assert.True(t, user.HasRole(models.RoleUser))
	require.Len(t, user.Rentals, 1)
	assert.Equal(t, unit.ID, user.Rentals[0].UnitID)
	assert.Equal(t, property.ID, user.Rentals[0].PropertyID)
	require.NotNil(t, user.Phone)
	assert.Equal(t, "254712345678", *user.Phone)
}

var errWriteFailed = errors.New("disk full")

func TestOccupancyManager_AssignTenantRollsBackOnWriteFailure(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	tenant := seedUser(t, db, "jane@example.com", nil)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_rental", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.TenantRental); ok {
			tx.AddError(errWriteFailed)
		}
	}))

	_, err := m.AssignTenant(context.Background(), unit.ID, tenant.Email, strPtr("0712345678"))
	assert.ErrorIs(t, err, services.ErrTransactionAborted)
	assert.ErrorIs(t, err, errWriteFailed)

	u := reloadUnit(t, db, unit)
	assert.Equal(t, models.UnitVacant, u.Status)
	assert.Nil(t, u.TenantID)

	user := reloadUser(t, db, tenant)
	assert.False(t, user.HasRole(models.RoleTenant))
	assert.Empty(t, user.Rentals)
	assert.Nil(t, user.Phone)
}

func TestOccupancyManager_RemoveTenantRollsBackOnWriteFailure(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	tenant := seedUser(t, db, "jane@example.com", nil)

	_, err := m.AssignTenant(ctx, unit.ID, tenant.Email, nil)
	require.NoError(t, err)

	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_role_delete", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.UserRole); ok {
			tx.AddError(errWriteFailed)
		}
	}))

	_, err = m.RemoveTenant(ctx, unit.ID)
	assert.ErrorIs(t, err, services.ErrTransactionAborted)
	assert.ErrorIs(t, err, errWriteFailed)

	u := reloadUnit(t, db, unit)
	assert.Equal(t, models.UnitOccupied, u.Status)
	require.NotNil(t, u.TenantID)
	assert.Equal(t, tenant.ID, *u.TenantID)

	user := reloadUser(t, db, tenant)
	assert.True(t, user.HasRole(models.RoleTenant))
	require.Len(t, user.Rentals, 1)
	assert.Equal(t, unit.ID, user.Rentals[0].UnitID)
}

func TestOccupancyManager_AssignTenantRequiresAccount(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")

	_, err := m.AssignTenant(context.Background(), unit.ID, "noacct@example.com", nil)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.ErrorIs(t, err, services.ErrTenantAccountRequired)

	u := reloadUnit(t, db, unit)
	assert.Equal(t, models.UnitVacant, u.Status)
	assert.Nil(t, u.TenantID)

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(0), users)
}

func TestOccupancyManager_AssignTenantRejectsOccupiedUnit(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	first := seedUser(t, db, "jane@example.com", nil)
	second := seedUser(t, db, "otieno@example.com", nil)

	_, err := m.AssignTenant(ctx, unit.ID, first.ID.String(), nil)
	require.NoError(t, err)

	_, err = m.AssignTenant(ctx, unit.ID, second.ID.String(), nil)
	assert.ErrorIs(t, err, services.ErrConflict)
	assert.ErrorIs(t, err, services.ErrUnitNotVacant)

	assert.False(t, reloadUser(t, db, second).HasRole(models.RoleTenant))
}

func TestOccupancyManager_AssignTenantInvalidPhone(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	tenant := seedUser(t, db, "jane@example.com", nil)

	_, err := m.AssignTenant(context.Background(), unit.ID, tenant.Email, strPtr("12345"))
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, models.UnitVacant, reloadUnit(t, db, unit).Status)
}

func TestOccupancyManager_UnknownUnit(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	tenant := seedUser(t, db, "jane@example.com", nil)

	_, err := m.AssignTenant(context.Background(), tenant.ID, tenant.Email, nil)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = m.RemoveTenant(context.Background(), tenant.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestOccupancyManager_RemoveOnlyUnitRevokesRole(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	tenant := seedUser(t, db, "jane@example.com", nil)

	_, err := m.AssignTenant(ctx, unit.ID, tenant.Email, nil)
	require.NoError(t, err)

	res, err := m.RemoveTenant(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, res.TenantID)
	assert.True(t, res.TenantRevoked)

	u := reloadUnit(t, db, unit)
	assert.Equal(t, models.UnitVacant, u.Status)
	assert.Nil(t, u.TenantID)

	user := reloadUser(t, db, tenant)
	assert.False(t, user.HasRole(models.RoleTenant))
	assert.True(t, user.HasRole(models.RoleUser))
	assert.Empty(t, user.Rentals)
}

func TestOccupancyManager_RemoveOneOfTwoUnitsKeepsRole(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unitA := seedUnit(t, db, property.ID, "A1")
	unitB := seedUnit(t, db, property.ID, "A2")
	tenant := seedUser(t, db, "jane@example.com", nil)

	_, err := m.AssignTenant(ctx, unitA.ID, tenant.Email, nil)
	require.NoError(t, err)
	_, err = m.AssignTenant(ctx, unitB.ID, tenant.Email, nil)
	require.NoError(t, err)

	var roles int64
	require.NoError(t, db.Model(&models.UserRole{}).Where("user_id = ? AND role = ?", tenant.ID, models.RoleTenant).Count(&roles).Error)
	assert.Equal(t, int64(1), roles)

	res, err := m.RemoveTenant(ctx, unitA.ID)
	require.NoError(t, err)
	assert.False(t, res.TenantRevoked)

	user := reloadUser(t, db, tenant)
	assert.True(t, user.HasRole(models.RoleTenant))
	require.Len(t, user.Rentals, 1)
	assert.Equal(t, unitB.ID, user.Rentals[0].UnitID)
	assert.Equal(t, models.UnitOccupied, reloadUnit(t, db, unitB).Status)
}

func TestOccupancyManager_RemoveFromVacantUnit(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")

	_, err := m.RemoveTenant(context.Background(), unit.ID)
	assert.ErrorIs(t, err, services.ErrConflict)
	assert.ErrorIs(t, err, services.ErrNoTenant)
}

func TestOccupancyManager_ConcurrentAssignments(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	tenants := []models.User{
		seedUser(t, db, "jane@example.com", nil),
		seedUser(t, db, "otieno@example.com", nil),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tenants))
	for i, tenant := range tenants {
		wg.Add(1)
		go func(i int, identifier string) {
			defer wg.Done()
			_, errs[i] = m.AssignTenant(ctx, unit.ID, identifier, nil)
		}(i, tenant.Email)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, services.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	var rentals int64
	require.NoError(t, db.Model(&models.TenantRental{}).Where("unit_id = ?", unit.ID).Count(&rentals).Error)
	assert.Equal(t, int64(1), rentals)

	var tenantRoles int64
	require.NoError(t, db.Model(&models.UserRole{}).Where("role = ?", models.RoleTenant).Count(&tenantRoles).Error)
	assert.Equal(t, int64(1), tenantRoles)
}

func TestOccupancyManager_ReconcileTenantRoles(t *testing.T) {
	db := setupTestDB(t)
	m := newOccupancy(db)
	ctx := context.Background()

	property := seedProperty(t, db)
	unit := seedUnit(t, db, property.ID, "A1")
	renter := seedUser(t, db, "jane@example.com", nil)
	former := seedUser(t, db, "otieno@example.com", nil)
	consistent := seedUser(t, db, "akinyi@example.com", nil)

	// rental without the role, and a role without a rental
	require.NoError(t, db.Create(&models.TenantRental{UserID: renter.ID, PropertyID: property.ID, UnitID: unit.ID}).Error)
	require.NoError(t, db.Create(&models.UserRole{UserID: former.ID, Role: models.RoleTenant}).Error)

	other := seedUnit(t, db, property.ID, "A2")
	_, err := m.AssignTenant(ctx, other.ID, consistent.Email, nil)
	require.NoError(t, err)

	fixed, err := m.ReconcileTenantRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	assert.True(t, reloadUser(t, db, renter).HasRole(models.RoleTenant))
	assert.False(t, reloadUser(t, db, former).HasRole(models.RoleTenant))
	assert.True(t, reloadUser(t, db, consistent).HasRole(models.RoleTenant))

	fixed, err = m.ReconcileTenantRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
}
