package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boazomare1/school-managementKE-sub001/internals/configs"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "fees",
	Short: "School fee invoicing and payment reconciliation",
	Long: `fees issues school fee invoices and reconciles payments from M-Pesa,
Stripe, Midtrans and cash desks against them.

Configuration is read from the environment (and .env when present).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configs.LoadEnv()
		cfg = configs.Load()
		return logger.Setup(cfg.Log)
	},
}

// cfg is loaded by PersistentPreRunE before any subcommand runs
var cfg *configs.Config

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
