package main

import (
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/scheduler"
	"github.com/smallbiznis/billbook/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// NewServeCommand runs the HTTP API together with the background scheduler.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				migration.Module,
				server.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
