package services

import (
	"context"
	"errors"
	"log"

	"github.com/anjiri1684/property_manager/models"
	"github.com/anjiri1684/property_manager/payments"
)

type ReconcileResult struct {
	Payment      *models.Payment
	Transitioned bool
}

// CallbackReconciler turns an inbound gateway callback into at most one ledger
// transition. It never creates payments.
type CallbackReconciler struct {
	ledger        *PaymentLedger
	accountNumber string
}

func NewCallbackReconciler(ledger *PaymentLedger, accountNumber string) *CallbackReconciler {
	return &CallbackReconciler{ledger: ledger, accountNumber: accountNumber}
}

func (r *CallbackReconciler) Reconcile(ctx context.Context, raw []byte) (*ReconcileResult, error) {
	cb, err := payments.ParseCallback(raw)
	if err != nil {
		log.Printf("⚠️ Rejected malformed callback: %v", err)
		return nil, wrapError(ErrMalformedCallback, err, "cannot parse callback")
	}

	log.Printf("Received callback for MerchantRequestID: %s, CheckoutRequestID: %s, ResultCode: %d",
		cb.MerchantRequestID, cb.CheckoutRequestID, cb.ResultCode)

	var ref *payments.AccountReference
	if cb.Reference != "" {
		decoded, err := payments.DecodeAccountReference(payments.ReferenceFromInvoice(r.accountNumber, cb.Reference))
		if err != nil {
			log.Printf("⚠️ Callback %s carries an undecodable reference %q: %v", cb.CheckoutRequestID, cb.Reference, err)
			return nil, wrapError(ErrMalformedCallback, err, "cannot decode callback reference")
		}
		ref = &decoded
	}

	md := cb.Metadata()
	outcome := CallbackOutcome{
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDesc,
		ReceiptNumber:     md.ReceiptNumber,
		PaidAmount:        md.Amount,
		PhoneNumber:       md.PhoneNumber,
		TransactionDate:   md.TransactionDate,
		RawPayload:        cb.Raw,
	}
	if cb.Succeeded() {
		if md.ReceiptNumber == "" {
			log.Printf("🔥 Successful callback %s has no receipt number, leaving payment pending", cb.CheckoutRequestID)
			return nil, &Error{Kind: ErrMalformedCallback, Reason: ErrMissingReceipt, Message: "successful callback " + cb.CheckoutRequestID + " has no receipt number"}
		}
		outcome.Status = models.PaymentCompleted
	} else {
		outcome.Status = models.PaymentFailed
	}

	existing, err := r.ledger.FindByGatewayIDs(ctx, cb.MerchantRequestID, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("⚠️ Unmatched callback for MerchantRequestID: %s, CheckoutRequestID: %s", cb.MerchantRequestID, cb.CheckoutRequestID)
			return nil, &Error{Kind: ErrUnmatchedCallback, Message: "no payment matches callback " + cb.CheckoutRequestID, Err: err}
		}
		return nil, err
	}
	if ref != nil && !referenceMatches(*ref, existing) {
		log.Printf("⚠️ Callback %s reference %q does not match payment %s", cb.CheckoutRequestID, cb.Reference, existing.ID)
		return nil, &Error{Kind: ErrUnmatchedCallback, Reason: ErrReferenceMismatch, Message: "callback reference does not match payment " + existing.ID.String()}
	}

	payment, transitioned, err := r.ledger.RecordCallbackResult(ctx, cb.MerchantRequestID, cb.CheckoutRequestID, outcome)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Kind: ErrUnmatchedCallback, Message: "no payment matches callback " + cb.CheckoutRequestID, Err: err}
		}
		log.Printf("🔥 CRITICAL: Failed to record callback %s: %v", cb.CheckoutRequestID, err)
		return nil, err
	}

	if !transitioned {
		if payment.Status != outcome.Status {
			log.Printf("⚠️ Payment %s is already %s, ignoring later %s callback", payment.ID, payment.Status, outcome.Status)
		} else {
			log.Printf("Callback %s already processed, payment %s is %s", cb.CheckoutRequestID, payment.ID, payment.Status)
		}
		return &ReconcileResult{Payment: payment, Transitioned: false}, nil
	}

	if md.Amount.Valid && !md.Amount.Decimal.Equal(payment.TotalAmount) {
		log.Printf("⚠️ Payment %s settled %s against an expected %s", payment.ID, md.Amount.Decimal, payment.TotalAmount)
	}
	if payment.Status == models.PaymentCompleted {
		log.Printf("✅ Payment %s completed, receipt %s", payment.ID, md.ReceiptNumber)
	} else {
		log.Printf("Payment %s failed (%d): %s", payment.ID, cb.ResultCode, cb.ResultDesc)
	}
	return &ReconcileResult{Payment: payment, Transitioned: true}, nil
}

func referenceMatches(ref payments.AccountReference, p *models.Payment) bool {
	return ref.PropertyID == p.PropertyID && ref.UnitID == p.UnitID && ref.PaymentType == string(p.PaymentType)
}
