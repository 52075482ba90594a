package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/property_manager/services"
)

func ReconcileTenantRoles(occupancy *services.OccupancyManager) func() {
	return func() {
		log.Println("Running job: ReconcileTenantRoles...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		fixed, err := occupancy.ReconcileTenantRoles(ctx)
		if err != nil {
			log.Printf("Error reconciling tenant roles: %v", err)
			return
		}
		if fixed == 0 {
			log.Println("Tenant roles are consistent with rentals.")
		}
	}
}
