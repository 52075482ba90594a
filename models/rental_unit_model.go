package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UnitStatus string

const (
	UnitVacant   UnitStatus = "vacant"
	UnitOccupied UnitStatus = "occupied"
)

// RentalUnit is occupied exactly when TenantID is set. Only services.OccupancyManager
// writes Status and TenantID.
type RentalUnit struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	PropertyID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"property_id"`
	Label         string          `gorm:"size:50;not null" json:"label"`
	Status        UnitStatus      `gorm:"size:20;not null;default:'vacant'" json:"status"`
	TenantID      *uuid.UUID      `gorm:"type:uuid;index" json:"tenant_id,omitempty"`
	RentAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"rent_amount"`
	DepositAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"deposit_amount"`

	Property Property `gorm:"foreignkey:PropertyID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *RentalUnit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UnitVacant
	}
	return nil
}
