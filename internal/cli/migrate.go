package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/bnv-me/webbnv/internal/database"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres memory schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Memory.Driver != "postgres" {
				return errors.New("migrate only applies to MEMORY_DRIVER=postgres; the sqlite store creates its schema on open")
			}
			return database.RunMigrations(cfg.DB.DSN(), cfg.Memory.MigrationsPath)
		},
	})
}
