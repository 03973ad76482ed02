package cmd

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one sweep pass and exit (for external schedulers)",
}

var sweepTimeoutsCmd = &cobra.Command{
	Use:   "timeouts",
	Short: "Poll providers for open payments and time out the expired ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.sweeper.SweepTimeouts(cmd.Context())
		if err != nil {
			return err
		}
		a.log.Info().
			Int("scanned", rep.Scanned).
			Int("resolved", rep.Resolved).
			Int("timed_out", rep.TimedOut).
			Int("errors", rep.Errors).
			Msg("timeout sweep finished")
		return nil
	},
}

var sweepOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Mark unpaid invoices past their due date as overdue",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.sweeper.SweepOverdue(cmd.Context())
		if err != nil {
			return err
		}
		a.log.Info().Int("count", n).Msg("overdue sweep finished")
		return nil
	},
}

func init() {
	sweepCmd.AddCommand(sweepTimeoutsCmd, sweepOverdueCmd)
	rootCmd.AddCommand(sweepCmd)
}
