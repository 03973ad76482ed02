package cmd

import (
	"github.com/spf13/cobra"

	database "github.com/boazomare1/school-managementKE-sub001/internals/databases"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the finance tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.ConnectDB(cfg.DB)
		if err != nil {
			return err
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		log := logger.WithComponent("migrate")
		log.Info().Msg("migration done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func autoMigrate(a *application) error {
	if err := database.AutoMigrate(a.db); err != nil {
		return err
	}
	a.log.Info().Msg("migration done")
	return nil
}
