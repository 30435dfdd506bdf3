package commands

import (
	"github.com/spf13/cobra"

	"memory-lane-backend/config"
	"memory-lane-backend/logger"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create tables, PostGIS columns and indexes, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			if err := config.Migrate(db); err != nil {
				return err
			}
			logger.Get().Info("migrations applied")
			return nil
		},
	})
}
