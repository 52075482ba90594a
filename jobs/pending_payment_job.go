package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/property_manager/services"
)

// ReportStalePendingPayments logs payments that never received a callback. It does not
// change them; expiring or re-querying a charge is an operator decision.
func ReportStalePendingPayments(ledger *services.PaymentLedger, olderThan time.Duration) func() {
	return func() {
		log.Println("Running job: ReportStalePendingPayments...")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		stale, err := ledger.ListStalePending(ctx, olderThan, time.Now())
		if err != nil {
			log.Printf("Error checking for stale payments: %v", err)
			return
		}

		if len(stale) == 0 {
			log.Println("No stale pending payments found.")
			return
		}

		for _, p := range stale {
			log.Printf("⚠️ Payment %s (CheckoutRequestID: %s, unit %s) pending since %s",
				p.ID, p.CheckoutRequestID, p.UnitID, p.CreatedAt.Format(time.RFC3339))
		}
		log.Printf("Found %d payment(s) pending longer than %s.", len(stale), olderThan)
	}
}
