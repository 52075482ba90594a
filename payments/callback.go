package payments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedCallback = errors.New("malformed callback payload")

// Gateway timestamps are East Africa Time with no zone in the payload.
var GatewayLocation = time.FixedZone("EAT", 3*60*60)

const transactionDateLayout = "20060102150405"

type KcbWebhookPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []MetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
			Reference string `json:"Reference"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// Callback is the normalized form of one gateway notification.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Reference         string
	Items             []MetadataItem
	Raw               []byte
}

func (c *Callback) Succeeded() bool { return c.ResultCode == 0 }

type CallbackMetadata struct {
	Amount          decimal.NullDecimal
	ReceiptNumber   string
	PhoneNumber     string
	TransactionDate *time.Time
}

func ParseCallback(raw []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload KcbWebhookPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	stk := payload.Body.StkCallback

	if strings.TrimSpace(stk.MerchantRequestID) == "" || strings.TrimSpace(stk.CheckoutRequestID) == "" {
		return nil, fmt.Errorf("%w: missing MerchantRequestID or CheckoutRequestID", ErrMalformedCallback)
	}
	code, err := strconv.Atoi(stk.ResultCode.String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ResultCode %q", ErrMalformedCallback, stk.ResultCode)
	}

	return &Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        stk.ResultDesc,
		Reference:         stk.Reference,
		Items:             stk.CallbackMetadata.Item,
		Raw:               raw,
	}, nil
}

// Metadata looks items up by name. Missing or unreadable items are left empty.
func (c *Callback) Metadata() CallbackMetadata {
	var md CallbackMetadata
	for _, item := range c.Items {
		value, ok := scalar(item.Value)
		if !ok {
			continue
		}
		switch item.Name {
		case "Amount":
			amount, err := decimal.NewFromString(value)
			if err != nil {
				log.Printf("⚠️ Ignoring unreadable callback Amount %q for %s", value, c.CheckoutRequestID)
				continue
			}
			md.Amount = decimal.NewNullDecimal(amount)
		case "MpesaReceiptNumber":
			md.ReceiptNumber = value
		case "PhoneNumber":
			md.PhoneNumber = value
		case "TransactionDate":
			t, err := time.ParseInLocation(transactionDateLayout, value, GatewayLocation)
			if err != nil {
				log.Printf("⚠️ Ignoring unreadable callback TransactionDate %q for %s", value, c.CheckoutRequestID)
				continue
			}
			md.TransactionDate = &t
		}
	}
	return md
}

func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}
