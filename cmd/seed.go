package cmd

import (
	"github.com/spf13/cobra"

	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
	"github.com/boazomare1/school-managementKE-sub001/internals/seeds"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo invoices",
	Example: `  fees seed
  fees seed --dir ./internals/seeds`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		a, err := newApplication(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return seeds.RunAllSeeds(cmd.Context(), a.invoices, dir, logger.WithComponent("seed"))
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().String("dir", "internals/seeds", "Directory holding the seed JSON files")
}
