package commands

import (
	"fmt"

	"github.com/genesis-labs/genesis-api/pkg/runtime/bootstrap"
	"github.com/genesis-labs/genesis-api/pkg/store/sql/migrations"
	"github.com/spf13/cobra"
)

func NewMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context(), bootstrap.Options{Migrate: true})
			if err != nil {
				return err
			}
			defer app.Close()

			version, dirty, err := migrations.Version(app.DB.SQL(), app.Dialect)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d (dirty: %t)\n", app.Dialect, version, dirty)
			return err
		},
	}
}
