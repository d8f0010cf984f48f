package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// NewMigrateCommand applies schema migrations and exits.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var conn *gorm.DB
			return runOnce(cmd.Context(), fx.Options(), func(context.Context) error {
				if err := migration.Run(conn); err != nil {
					return err
				}
				version, dirty, err := migration.Version(conn)
				if err != nil {
					return err
				}
				if version == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
				return nil
			}, &conn)
		},
	}
}
