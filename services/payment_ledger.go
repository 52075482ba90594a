package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/anjiri1684/property_manager/models"
	"github.com/anjiri1684/property_manager/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CallbackOutcome is the terminal result a callback asks the ledger to record.
type CallbackOutcome struct {
	Status            models.PaymentStatus
	ResultCode        int
	ResultDescription string
	ReceiptNumber     string
	PaidAmount        decimal.NullDecimal
	PhoneNumber       string
	TransactionDate   *time.Time
	RawPayload        []byte
}

// PaymentLedger owns the lifecycle of payment rows. Rows leave pending exactly once and
// are never deleted.
type PaymentLedger struct {
	db *gorm.DB
}

func NewPaymentLedger(db *gorm.DB) *PaymentLedger {
	return &PaymentLedger{db: db}
}

// CreatePending inserts p as pending. Recurring payments are rejected with
// ErrDuplicatePending while another pending row exists for the same unit, tenant and
// period; the partial unique index covers the race between two concurrent inserts.
func (l *PaymentLedger) CreatePending(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if p.MerchantRequestID == "" || p.CheckoutRequestID == "" {
		return nil, newError(ErrValidation, nil, "gateway request ids are required")
	}
	if !p.PaymentType.Valid() {
		return nil, newError(ErrValidation, nil, "unknown payment type %q", p.PaymentType)
	}
	recurring := p.PaymentType.Recurring()
	if recurring && (p.PeriodMonth == nil || p.PeriodYear == nil) {
		return nil, newError(ErrValidation, nil, "%s payments need a billing period", p.PaymentType)
	}
	if recurring {
		if _, err := utils.NewPeriod(*p.PeriodMonth, *p.PeriodYear); err != nil {
			return nil, wrapError(ErrValidation, err, "invalid billing period")
		}
	} else {
		p.PeriodMonth, p.PeriodYear = nil, nil
	}
	p.Status = models.PaymentPending

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if recurring {
			var count int64
			if err := tx.Model(&models.Payment{}).
				Where("unit_id = ? AND tenant_id = ? AND period_month = ? AND period_year = ? AND status = ?",
					p.UnitID, p.TenantID, *p.PeriodMonth, *p.PeriodYear, models.PaymentPending).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return newError(ErrConflict, ErrDuplicatePending, "pending payment already exists for %04d-%02d", *p.PeriodYear, *p.PeriodMonth)
			}
		}
		return tx.Create(p).Error
	})
	if err != nil {
		var engineErr *Error
		if errors.As(err, &engineErr) {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if recurring {
				return nil, &Error{Kind: ErrConflict, Reason: ErrDuplicatePending, Err: err}
			}
			return nil, wrapError(ErrConflict, err, "gateway request %s is already recorded", p.CheckoutRequestID)
		}
		return nil, wrapError(ErrTransactionAborted, err, "failed to record pending payment")
	}

	log.Printf("Recorded pending %s payment %s (CheckoutRequestID: %s)", p.PaymentType, p.ID, p.CheckoutRequestID)
	return p, nil
}

// RecordCallbackResult moves the payment addressed by the two gateway ids to a terminal
// status. The update only applies while the row is still pending, so repeated or
// concurrent deliveries leave the first result in place and get the stored row back.
// The boolean reports whether this call made the transition.
func (l *PaymentLedger) RecordCallbackResult(ctx context.Context, merchantRequestID, checkoutRequestID string, outcome CallbackOutcome) (*models.Payment, bool, error) {
	if !outcome.Status.Terminal() {
		return nil, false, newError(ErrValidation, nil, "callback outcome must be terminal, got %q", outcome.Status)
	}

	updates := map[string]any{
		"status":             outcome.Status,
		"result_code":        outcome.ResultCode,
		"result_description": outcome.ResultDescription,
		"updated_at":         time.Now(),
	}
	if outcome.ReceiptNumber != "" {
		updates["receipt_number"] = outcome.ReceiptNumber
	}
	if outcome.PaidAmount.Valid {
		updates["paid_amount"] = outcome.PaidAmount
	}
	if outcome.PhoneNumber != "" {
		updates["phone_number"] = outcome.PhoneNumber
	}
	if outcome.TransactionDate != nil {
		updates["transaction_date"] = *outcome.TransactionDate
	}
	if len(outcome.RawPayload) > 0 {
		updates["callback_payload"] = datatypes.JSON(outcome.RawPayload)
	}

	db := l.db.WithContext(ctx)
	res := db.Model(&models.Payment{}).
		Where("merchant_request_id = ? AND checkout_request_id = ? AND status = ?", merchantRequestID, checkoutRequestID, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, false, wrapError(ErrConflict, res.Error, "receipt %s is already recorded on another payment", outcome.ReceiptNumber)
		}
		return nil, false, wrapError(ErrTransactionAborted, res.Error, "failed to record callback result")
	}

	payment, err := l.FindByGatewayIDs(ctx, merchantRequestID, checkoutRequestID)
	if err != nil {
		return nil, false, err
	}
	return payment, res.RowsAffected == 1, nil
}

func (l *PaymentLedger) FindByGatewayIDs(ctx context.Context, merchantRequestID, checkoutRequestID string) (*models.Payment, error) {
	var payment models.Payment
	err := l.db.WithContext(ctx).
		Where("merchant_request_id = ? AND checkout_request_id = ?", merchantRequestID, checkoutRequestID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, nil, "no payment for MerchantRequestID %s / CheckoutRequestID %s", merchantRequestID, checkoutRequestID)
		}
		return nil, wrapError(ErrTransactionAborted, err, "failed to load payment")
	}
	return &payment, nil
}

func (l *PaymentLedger) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	var payment models.Payment
	if err := l.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, nil, "no payment for CheckoutRequestID %s", checkoutRequestID)
		}
		return nil, wrapError(ErrTransactionAborted, err, "failed to load payment")
	}
	return &payment, nil
}

// HasPeriodBeenPaid reports whether a completed payment exists for exactly this period.
func (l *PaymentLedger) HasPeriodBeenPaid(ctx context.Context, unitID, tenantID uuid.UUID, month, year int) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.Payment{}).
		Where("unit_id = ? AND tenant_id = ? AND period_month = ? AND period_year = ? AND status = ?",
			unitID, tenantID, month, year, models.PaymentCompleted).
		Count(&count).Error
	if err != nil {
		return false, wrapError(ErrTransactionAborted, err, "failed to check paid periods")
	}
	return count > 0, nil
}

func (l *PaymentLedger) PendingForPeriod(ctx context.Context, unitID, tenantID uuid.UUID, period utils.Period) (*models.Payment, bool, error) {
	var payment models.Payment
	err := l.db.WithContext(ctx).
		Where("unit_id = ? AND tenant_id = ? AND period_month = ? AND period_year = ? AND status = ?",
			unitID, tenantID, period.Month, period.Year, models.PaymentPending).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapError(ErrTransactionAborted, err, "failed to check pending payments")
	}
	return &payment, true, nil
}

// ListStalePending returns payments still pending after olderThan, oldest first.
func (l *PaymentLedger) ListStalePending(ctx context.Context, olderThan time.Duration, now time.Time) ([]models.Payment, error) {
	var stale []models.Payment
	err := l.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentPending, now.Add(-olderThan)).
		Order("created_at ASC").
		Find(&stale).Error
	if err != nil {
		return nil, wrapError(ErrTransactionAborted, err, "failed to list stale payments")
	}
	return stale, nil
}
