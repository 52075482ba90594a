package payments

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successfulCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500},
          {"Name": "MpesaReceiptNumber", "Value": "QAR123"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20250304101530},
          {"Name": "PhoneNumber", "Value": 254700111222}
        ]
      },
      "Reference": "7654321-ref"
    }
  }
}`

func TestParseCallback_Success(t *testing.T) {
	cb, err := ParseCallback([]byte(successfulCallback))
	require.NoError(t, err)

	assert.Equal(t, "29115-34620561-1", cb.MerchantRequestID)
	assert.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	assert.Equal(t, 0, cb.ResultCode)
	assert.True(t, cb.Succeeded())
	assert.Equal(t, "7654321-ref", cb.Reference)
	assert.Equal(t, successfulCallback, string(cb.Raw))

	md := cb.Metadata()
	require.True(t, md.Amount.Valid)
	assert.True(t, decimal.NewFromInt(1500).Equal(md.Amount.Decimal))
	assert.Equal(t, "QAR123", md.ReceiptNumber)
	assert.Equal(t, "254700111222", md.PhoneNumber)
	require.NotNil(t, md.TransactionDate)
	assert.True(t, time.Date(2025, 3, 4, 10, 15, 30, 0, GatewayLocation).Equal(*md.TransactionDate))
	assert.Equal(t, "2025-03-04T07:15:30Z", md.TransactionDate.UTC().Format(time.RFC3339))
}

func TestParseCallback_Failure(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"MR-1","CheckoutRequestID":"CO-1","ResultCode":"1032","ResultDesc":"Request cancelled by user"}}}`

	cb, err := ParseCallback([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 1032, cb.ResultCode)
	assert.False(t, cb.Succeeded())

	md := cb.Metadata()
	assert.False(t, md.Amount.Valid)
	assert.Empty(t, md.ReceiptNumber)
	assert.Nil(t, md.TransactionDate)
}

func TestParseCallback_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `<xml/>`,
		"empty body":       `{}`,
		"missing checkout": `{"Body":{"stkCallback":{"MerchantRequestID":"MR-1","ResultCode":0}}}`,
		"blank merchant":   `{"Body":{"stkCallback":{"MerchantRequestID":"  ","CheckoutRequestID":"CO-1","ResultCode":0}}}`,
		"missing code":     `{"Body":{"stkCallback":{"MerchantRequestID":"MR-1","CheckoutRequestID":"CO-1"}}}`,
		"fractional code":  `{"Body":{"stkCallback":{"MerchantRequestID":"MR-1","CheckoutRequestID":"CO-1","ResultCode":0.5}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallback([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}

func TestCallbackMetadata_StringValues(t *testing.T) {
	cb := &Callback{
		CheckoutRequestID: "CO-1",
		Items: []MetadataItem{
			{Name: "Amount", Value: "1500.00"},
			{Name: "MpesaReceiptNumber", Value: " QAR123 "},
			{Name: "TransactionDate", Value: "20250304101530"},
			{Name: "PhoneNumber", Value: float64(254700111222)},
		},
	}

	md := cb.Metadata()
	assert.True(t, decimal.NewFromInt(1500).Equal(md.Amount.Decimal))
	assert.Equal(t, "QAR123", md.ReceiptNumber)
	assert.Equal(t, "254700111222", md.PhoneNumber)
	require.NotNil(t, md.TransactionDate)
	assert.Equal(t, 10, md.TransactionDate.Hour())
}

func TestCallbackMetadata_UnreadableValuesAreSkipped(t *testing.T) {
	cb := &Callback{
		CheckoutRequestID: "CO-1",
		Items: []MetadataItem{
			{Name: "Amount", Value: "fifteen hundred"},
			{Name: "TransactionDate", Value: "04/03/2025"},
			{Name: "MpesaReceiptNumber", Value: map[string]any{"nested": true}},
			{Name: "PhoneNumber", Value: nil},
		},
	}

	md := cb.Metadata()
	assert.False(t, md.Amount.Valid)
	assert.Nil(t, md.TransactionDate)
	assert.Empty(t, md.ReceiptNumber)
	assert.Empty(t, md.PhoneNumber)
}
