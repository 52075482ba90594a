package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentType string

const (
	PaymentTypeJoining     PaymentType = "joining"
	PaymentTypeMonthlyRent PaymentType = "monthly_rent"
)

// Recurring payment types carry a billing period.
func (t PaymentType) Recurring() bool { return t == PaymentTypeMonthlyRent }

func (t PaymentType) Valid() bool {
	return t == PaymentTypeJoining || t == PaymentTypeMonthlyRent
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Terminal() bool { return s != PaymentPending }

// Payment is one attempt to collect money through the gateway. Rows are never deleted.
// At most one pending row may exist per (unit, tenant, period); the partial unique index
// idx_pending_period enforces that in the store.
type Payment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_pending_period,where:status = 'pending'" json:"tenant_id"`
	PropertyID uuid.UUID `gorm:"type:uuid;not null;index" json:"property_id"`
	UnitID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_pending_period,where:status = 'pending'" json:"unit_id"`

	PhoneNumber string              `gorm:"size:20;not null" json:"phone_number"`
	TotalAmount decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	PaidAmount  decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"paid_amount"`
	PaymentType PaymentType         `gorm:"size:20;not null" json:"payment_type"`
	PeriodMonth *int                `gorm:"uniqueIndex:idx_pending_period,where:status = 'pending'" json:"period_month,omitempty"`
	PeriodYear  *int                `gorm:"uniqueIndex:idx_pending_period,where:status = 'pending'" json:"period_year,omitempty"`
	Status      PaymentStatus       `gorm:"size:20;not null;index;default:'pending'" json:"status"`

	AccountReference  string  `gorm:"size:255;not null" json:"account_reference"`
	MerchantRequestID string  `gorm:"size:255;not null;uniqueIndex:idx_gateway_request" json:"merchant_request_id"`
	CheckoutRequestID string  `gorm:"size:255;not null;uniqueIndex:idx_gateway_request;index" json:"checkout_request_id"`
	ReceiptNumber     *string `gorm:"size:255;unique" json:"receipt_number,omitempty"`

	ResultCode        *int           `json:"result_code,omitempty"`
	ResultDescription *string        `gorm:"type:text" json:"result_description,omitempty"`
	TransactionDate   *time.Time     `json:"transaction_date,omitempty"`
	CallbackPayload   datatypes.JSON `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
