package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/anjiri1684/property_manager/models"
	"github.com/anjiri1684/property_manager/payments"
	"github.com/anjiri1684/property_manager/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// Gateway starts a mobile-money charge. *payments.MpesaClient implements it.
type Gateway interface {
	Initiate(ctx context.Context, phone string, amount decimal.Decimal, accountReference, description string) (*payments.InitiationResult, error)
	AccountNumber() string
}

type InitiatePaymentRequest struct {
	UnitID      string          `json:"unit_id" validate:"required,uuid"`
	TenantID    string          `json:"tenant_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType string          `json:"payment_type" validate:"required,oneof=joining monthly_rent"`
	Period      *utils.Period   `json:"period,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Description string          `json:"description,omitempty" validate:"max=100"`
}

type InitiatePaymentResult struct {
	PaymentID         uuid.UUID `json:"payment_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	CustomerMessage   string    `json:"customer_message"`
}

type CallbackResult struct {
	PaymentID    uuid.UUID            `json:"payment_id"`
	FinalStatus  models.PaymentStatus `json:"final_status"`
	Transitioned bool                 `json:"transitioned"`
}

// Engine is the API callers use for payments and occupancy.
type Engine struct {
	gateway    Gateway
	directory  Directory
	ledger     *PaymentLedger
	reconciler *CallbackReconciler
	occupancy  *OccupancyManager
}

func NewEngine(db *gorm.DB, gateway Gateway) *Engine {
	directory := NewGormDirectory(db)
	ledger := NewPaymentLedger(db)
	return &Engine{
		gateway:    gateway,
		directory:  directory,
		ledger:     ledger,
		reconciler: NewCallbackReconciler(ledger, gateway.AccountNumber()),
		occupancy:  NewOccupancyManager(db, directory),
	}
}

func (e *Engine) Ledger() *PaymentLedger { return e.ledger }
func (e *Engine) Occupancy() *OccupancyManager { return e.occupancy }

// InitiatePayment checks for an already paid or in-flight period before contacting the
// gateway, then records the pending payment under the ids the gateway assigned.
func (e *Engine) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, wrapError(ErrValidation, err, "invalid payment request")
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, newError(ErrValidation, nil, "amount must be a positive whole number, got %s", req.Amount)
	}

	paymentType := models.PaymentType(req.PaymentType)
	var period *utils.Period
	if paymentType.Recurring() {
		if req.Period == nil {
			return nil, newError(ErrValidation, nil, "%s payments need a billing period", paymentType)
		}
		if err := req.Period.Validate(); err != nil {
			return nil, wrapError(ErrValidation, err, "invalid billing period")
		}
		period = req.Period
	}

	unitID, _ := uuid.Parse(req.UnitID)
	unit, err := e.directory.FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	tenant, err := e.directory.FindTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	switch paymentType {
	case models.PaymentTypeMonthlyRent:
		if unit.TenantID == nil || *unit.TenantID != tenant.ID {
			return nil, newError(ErrConflict, nil, "unit %s is not rented by tenant %s", unit.ID, tenant.ID)
		}
		paid, err := e.ledger.HasPeriodBeenPaid(ctx, unit.ID, tenant.ID, period.Month, period.Year)
		if err != nil {
			return nil, err
		}
		if paid {
			return nil, newError(ErrConflict, ErrPeriodAlreadyPaid, "rent for %s is already paid", period)
		}
		if pending, found, err := e.ledger.PendingForPeriod(ctx, unit.ID, tenant.ID, *period); err != nil {
			return nil, err
		} else if found {
			return nil, newError(ErrConflict, ErrDuplicatePending, "payment %s for %s is still pending", pending.CheckoutRequestID, period)
		}
	case models.PaymentTypeJoining:
		if unit.TenantID != nil && *unit.TenantID != tenant.ID {
			return nil, newError(ErrConflict, ErrUnitNotVacant, "unit %s is occupied by another tenant", unit.ID)
		}
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" && tenant.Phone != nil {
		phone = *tenant.Phone
	}
	sanitizedPhone, err := payments.SanitizeMpesaNumber(phone)
	if err != nil {
		return nil, wrapError(ErrValidation, err, "a valid M-Pesa phone number is required")
	}

	reference, err := payments.EncodeAccountReference(payments.AccountReference{
		PropertyID:  unit.PropertyID,
		UnitID:      unit.ID,
		PaymentType: string(paymentType),
	})
	if err != nil {
		return nil, wrapError(ErrValidation, err, "cannot build account reference")
	}

	result, err := e.gateway.Initiate(ctx, sanitizedPhone, req.Amount, reference, req.Description)
	if err != nil {
		log.Printf("🔥 Payment initiation failed for unit %s: %v", unit.ID, err)
		if errors.Is(err, payments.ErrInvalidPhone) {
			return nil, wrapError(ErrValidation, err, "invalid phone number")
		}
		return nil, wrapError(ErrGateway, err, "payment could not be initiated")
	}

	payment := &models.Payment{
		TenantID:          tenant.ID,
		PropertyID:        unit.PropertyID,
		UnitID:            unit.ID,
		PhoneNumber:       sanitizedPhone,
		TotalAmount:       req.Amount,
		PaymentType:       paymentType,
		AccountReference:  reference,
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
	}
	if period != nil {
		month, year := period.Month, period.Year
		payment.PeriodMonth, payment.PeriodYear = &month, &year
	}

	if _, err := e.ledger.CreatePending(ctx, payment); err != nil {
		log.Printf("🔥 CRITICAL: Gateway accepted CheckoutRequestID %s but the pending payment was not recorded: %v", result.CheckoutRequestID, err)
		return nil, err
	}

	return &InitiatePaymentResult{
		PaymentID:         payment.ID,
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
		CustomerMessage:   result.CustomerMessage,
	}, nil
}

func (e *Engine) HandleCallback(ctx context.Context, raw []byte) (*CallbackResult, error) {
	res, err := e.reconciler.Reconcile(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{
		PaymentID:    res.Payment.ID,
		FinalStatus:  res.Payment.Status,
		Transitioned: res.Transitioned,
	}, nil
}

func (e *Engine) AssignTenant(ctx context.Context, unitID, tenantIdentifier string, phone *string) (*AssignResult, error) {
	id, err := parseUnitID(unitID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tenantIdentifier) == "" {
		return nil, newError(ErrValidation, nil, "tenant identifier is required")
	}
	return e.occupancy.AssignTenant(ctx, id, tenantIdentifier, phone)
}

func (e *Engine) RemoveTenant(ctx context.Context, unitID string) (*RemoveResult, error) {
	id, err := parseUnitID(unitID)
	if err != nil {
		return nil, err
	}
	return e.occupancy.RemoveTenant(ctx, id)
}

func (e *Engine) GetPaymentStatus(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, newError(ErrValidation, nil, "checkout request id is required")
	}
	return e.ledger.FindByCheckoutID(ctx, checkoutRequestID)
}

func parseUnitID(unitID string) (uuid.UUID, error) {
	if err := validate.Var(unitID, "required,uuid"); err != nil {
		return uuid.Nil, wrapError(ErrValidation, err, "invalid unit id")
	}
	id, _ := uuid.Parse(unitID)
	return id, nil
}
