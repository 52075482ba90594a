package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anjiri1684/property_manager/database"
	"github.com/anjiri1684/property_manager/payments"
	"github.com/anjiri1684/property_manager/services"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func getDB() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL not set in environment or .env file")
	}
	return database.Open(postgres.Open(dsn))
}

// None of the commands call the gateway.
func getEngine() (*services.Engine, error) {
	db, err := getDB()
	if err != nil {
		return nil, err
	}
	return services.NewEngine(db, payments.NewMpesaClient(payments.OptionsFromEnv(), nil)), nil
}

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the payment and occupancy tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := getDB()
			if err != nil {
				return err
			}
			if err := database.MigrateDB(db); err != nil {
				return fmt.Errorf("failed to migrate: %v", err)
			}
			fmt.Println("Migration complete.")
			return nil
		},
	}
}

func ReconcileRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-roles",
		Short: "Re-derive the TENANT role from rental membership",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := getEngine()
			if err != nil {
				return err
			}
			fixed, err := engine.Occupancy().ReconcileTenantRoles(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Corrected %d user(s).\n", fixed)
			return nil
		},
	}
}

func PaymentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payment-status <checkoutRequestId>",
		Short: "Show the stored state of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := getEngine()
			if err != nil {
				return err
			}
			payment, err := engine.GetPaymentStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(payment, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func StalePaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale-payments",
		Short: "List payments still pending after a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")

			engine, err := getEngine()
			if err != nil {
				return err
			}
			stale, err := engine.Ledger().ListStalePending(cmd.Context(), olderThan, time.Now())
			if err != nil {
				return err
			}
			if len(stale) == 0 {
				fmt.Println("No stale pending payments.")
				return nil
			}
			for _, p := range stale {
				fmt.Printf("- %s %s unit=%s tenant=%s amount=%s since %s\n",
					p.ID, p.CheckoutRequestID, p.UnitID, p.TenantID, p.TotalAmount, p.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().Duration("older-than", 24*time.Hour, "Report payments pending longer than this")

	return cmd
}
