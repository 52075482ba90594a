package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "enginectl",
		Short: "Operator tooling for payments and occupancy",
	}

	rootCmd.AddCommand(
		MigrateCmd(),
		ReconcileRolesCmd(),
		PaymentStatusCmd(),
		StalePaymentsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
