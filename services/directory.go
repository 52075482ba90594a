package services

import (
	"context"
	"errors"
	"strings"

	"github.com/anjiri1684/property_manager/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Directory resolves accounts and units owned by the surrounding CRUD layer.
type Directory interface {
	FindTenant(ctx context.Context, identifier string) (*models.User, error)
	FindUnit(ctx context.Context, unitID uuid.UUID) (*models.RentalUnit, error)
}

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// FindTenant accepts a user id or an email address.
func (d *GormDirectory) FindTenant(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, newError(ErrValidation, nil, "tenant identifier is required")
	}

	query := d.db.WithContext(ctx).Preload("Roles")
	if id, err := uuid.Parse(identifier); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("LOWER(email) = ?", strings.ToLower(identifier))
	}

	var user models.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, nil, "tenant %q not found", identifier)
		}
		return nil, wrapError(ErrTransactionAborted, err, "failed to load tenant")
	}
	return &user, nil
}

func (d *GormDirectory) FindUnit(ctx context.Context, unitID uuid.UUID) (*models.RentalUnit, error) {
	var unit models.RentalUnit
	if err := d.db.WithContext(ctx).First(&unit, "id = ?", unitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, nil, "unit %s not found", unitID)
		}
		return nil, wrapError(ErrTransactionAborted, err, "failed to load unit")
	}
	return &unit, nil
}
