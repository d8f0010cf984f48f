package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/observability"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const commandTimeout = 30 * time.Second

// NewRootCommand creates the billbook command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billbook",
		Short: "Offline-first GST invoicing backend",
		Long: `billbook serves the device sync API and runs the maintenance jobs
behind it. Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewBusinessCommand())
	cmd.AddCommand(NewAPIKeyCommand())
	cmd.AddCommand(NewSequencesCommand())

	return cmd
}

// RegisterSnowflake builds the id generator for this process.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// runOnce starts a short-lived app, hands the populated targets to fn and
// stops it again.
func runOnce(ctx context.Context, modules fx.Option, fn func(ctx context.Context) error, targets ...any) error {
	app := fx.New(
		infrastructure(),
		modules,
		fx.NopLogger,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), commandTimeout)
		defer stop()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseOrgID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}
