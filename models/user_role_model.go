package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser   = "USER"
	RoleTenant = "TENANT"
)

// UserRole rows form a set per user; the composite unique index makes grants idempotent.
// RoleTenant is derived from TenantRental membership and is never granted directly.
type UserRole struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_role" json:"user_id"`
	Role      string    `gorm:"size:20;not null;uniqueIndex:idx_user_role" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
