package payments

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	referenceDelimiter = '|'
	referenceEscape    = '\\'
	referenceFields    = 3
)

var ErrInvalidReference = errors.New("invalid account reference")

// Payment types travel as a single letter to keep the invoice string short.
var (
	paymentTypeCodes = map[string]string{
		"joining":      "J",
		"monthly_rent": "M",
	}
	paymentTypesByCode = map[string]string{
		"J": "joining",
		"M": "monthly_rent",
	}
)

var idEncoding = base64.RawURLEncoding

// AccountReference is the routing context sent to the gateway and echoed back in the
// callback.
type AccountReference struct {
	PropertyID  uuid.UUID
	UnitID      uuid.UUID
	PaymentType string
}

// EncodeAccountReference writes "<property>|<unit>|<type>" where both ids are the
// unpadded base64url form of their 16 bytes and the type is its one-letter code.
func EncodeAccountReference(ref AccountReference) (string, error) {
	code, ok := paymentTypeCodes[ref.PaymentType]
	if !ok {
		return "", fmt.Errorf("%w: unknown payment type %q", ErrInvalidReference, ref.PaymentType)
	}
	fields := []string{encodeID(ref.PropertyID), encodeID(ref.UnitID), code}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteRune(referenceDelimiter)
		}
		for _, r := range f {
			if r == referenceDelimiter || r == referenceEscape {
				b.WriteRune(referenceEscape)
			}
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// DecodeAccountReference rejects anything that does not split into exactly three fields
// with two 16-byte ids and a known payment type code.
func DecodeAccountReference(s string) (AccountReference, error) {
	var (
		fields  []string
		current strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == referenceEscape:
			escaped = true
		case r == referenceDelimiter:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return AccountReference{}, fmt.Errorf("%w: dangling escape in %q", ErrInvalidReference, s)
	}
	fields = append(fields, current.String())

	if len(fields) != referenceFields {
		return AccountReference{}, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidReference, referenceFields, len(fields))
	}
	propertyID, err := decodeID(fields[0])
	if err != nil {
		return AccountReference{}, fmt.Errorf("%w: property id: %v", ErrInvalidReference, err)
	}
	unitID, err := decodeID(fields[1])
	if err != nil {
		return AccountReference{}, fmt.Errorf("%w: unit id: %v", ErrInvalidReference, err)
	}
	paymentType, ok := paymentTypesByCode[fields[2]]
	if !ok {
		return AccountReference{}, fmt.Errorf("%w: unknown payment type code %q", ErrInvalidReference, fields[2])
	}

	return AccountReference{PropertyID: propertyID, UnitID: unitID, PaymentType: paymentType}, nil
}

func encodeID(id uuid.UUID) string {
	return idEncoding.EncodeToString(id[:])
}

func decodeID(s string) (uuid.UUID, error) {
	raw, err := idEncoding.Strict().DecodeString(s)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(raw)
}

// InvoiceNumber is the invoice string KCB expects: "<account>-<reference>".
func InvoiceNumber(account, reference string) string {
	return fmt.Sprintf("%s-%s", account, reference)
}

// ReferenceFromInvoice strips the account prefix the gateway echoes back.
func ReferenceFromInvoice(account, invoice string) string {
	if account == "" {
		return invoice
	}
	return strings.TrimPrefix(invoice, account+"-")
}
