package cli

import (
	"supportdesk/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var seed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logrus.StandardLogger()
		db, err := app.OpenDatabase(cfg, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := app.Migrate(db, log); err != nil {
			return err
		}
		if seed {
			return app.Seed(cmd.Context(), db, log)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&seed, "seed", false, "insert demo incidences into an empty database")
	rootCmd.AddCommand(migrateCmd)
}
