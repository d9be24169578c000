package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer e.close()
			printf(cmd.OutOrStdout(), "database migrated: %s\n", e.cfg.Database.Path)
			return nil
		},
	}
}
