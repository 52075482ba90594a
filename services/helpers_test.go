package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/anjiri1684/property_manager/database"
	"github.com/anjiri1684/property_manager/models"
	"github.com/anjiri1684/property_manager/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testAccountNumber = "7654321"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)

	// one connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.MigrateDB(db))
	return db
}

func seedProperty(t *testing.T, db *gorm.DB) models.Property {
	t.Helper()
	p := models.Property{Name: "Sunrise Apartments", Location: "Nairobi"}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedUnit(t *testing.T, db *gorm.DB, propertyID uuid.UUID, label string) models.RentalUnit {
	t.Helper()
	u := models.RentalUnit{
		PropertyID:    propertyID,
		Label:         label,
		RentAmount:    decimal.NewFromInt(1500),
		DepositAmount: decimal.NewFromInt(3000),
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedUser(t *testing.T, db *gorm.DB, email string, phone *string) models.User {
	t.Helper()
	u := models.User{FullName: "Jane Wanjiku", Email: email, Phone: phone, IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	require.NoError(t, db.Create(&models.UserRole{UserID: u.ID, Role: models.RoleUser}).Error)
	return u
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

type fakeGateway struct {
	mu         sync.Mutex
	calls      int
	err        error
	lastPhone  string
	lastAmount decimal.Decimal
	lastRef    string
}

func (g *fakeGateway) Initiate(ctx context.Context, phone string, amount decimal.Decimal, accountReference, description string) (*payments.InitiationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastPhone, g.lastAmount, g.lastRef = phone, amount, accountReference
	if g.err != nil {
		return nil, g.err
	}
	return &payments.InitiationResult{
		MerchantRequestID: fmt.Sprintf("MR-%d", g.calls),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", g.calls),
		CustomerMessage:   "Success. Request accepted for processing",
		ResponseCode:      "0",
	}, nil
}

func (g *fakeGateway) AccountNumber() string { return testAccountNumber }

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// callbackJSON builds a gateway notification. reference is the bare account reference;
// pass "" to omit it.
func callbackJSON(t *testing.T, merchantID, checkoutID string, resultCode int, reference string, items ...payments.MetadataItem) []byte {
	t.Helper()
	stk := map[string]any{
		"MerchantRequestID": merchantID,
		"CheckoutRequestID": checkoutID,
		"ResultCode":        resultCode,
		"ResultDesc":        "The service request is processed successfully.",
	}
	if len(items) > 0 {
		stk["CallbackMetadata"] = map[string]any{"Item": items}
	}
	if reference != "" {
		stk["Reference"] = payments.InvoiceNumber(testAccountNumber, reference)
	}
	raw, err := json.Marshal(map[string]any{"Body": map[string]any{"stkCallback": stk}})
	require.NoError(t, err)
	return raw
}

func successItems(receipt string, amount int) []payments.MetadataItem {
	items := []payments.MetadataItem{
		{Name: "Amount", Value: amount},
		{Name: "PhoneNumber", Value: 254700111222},
		{Name: "TransactionDate", Value: 20250304101530},
	}
	if receipt != "" {
		items = append(items, payments.MetadataItem{Name: "MpesaReceiptNumber", Value: receipt})
	}
	return items
}

func encodeReference(t *testing.T, propertyID, unitID uuid.UUID, paymentType models.PaymentType) string {
	t.Helper()
	ref, err := payments.EncodeAccountReference(payments.AccountReference{PropertyID: propertyID, UnitID: unitID, PaymentType: string(paymentType)})
	require.NoError(t, err)
	return ref
}

func pendingPayment(t *testing.T, tenant models.User, unit models.RentalUnit, merchantID, checkoutID string, month, year int) *models.Payment {
	t.Helper()
	return &models.Payment{
		TenantID:          tenant.ID,
		PropertyID:        unit.PropertyID,
		UnitID:            unit.ID,
		PhoneNumber:       "254700111222",
		TotalAmount:       decimal.NewFromInt(1500),
		PaymentType:       models.PaymentTypeMonthlyRent,
		PeriodMonth:       intPtr(month),
		PeriodYear:        intPtr(year),
		AccountReference:  encodeReference(t, unit.PropertyID, unit.ID, models.PaymentTypeMonthlyRent),
		MerchantRequestID: merchantID,
		CheckoutRequestID: checkoutID,
	}
}
