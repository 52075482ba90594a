package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantRental is one entry of a tenant's rented-units set. A unit appears at most once.
type TenantRental struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	PropertyID uuid.UUID `gorm:"type:uuid;not null" json:"property_id"`
	UnitID     uuid.UUID `gorm:"type:uuid;not null;unique" json:"unit_id"`
	CreatedAt  time.Time `json:"created_at"`
}
