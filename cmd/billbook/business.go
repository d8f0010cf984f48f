package main

import (
	"context"

	"github.com/smallbiznis/billbook/internal/business"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	"github.com/spf13/cobra"
)

type businessCreateOptions struct {
	Name          string
	Plan          string
	GSTIN         string
	StateCode     string
	InvoicePrefix string
	NoDrafts      bool
}

// NewBusinessCommand groups tenant provisioning commands.
func NewBusinessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Manage tenant businesses",
	}
	cmd.AddCommand(newBusinessCreateCommand())
	return cmd
}

func newBusinessCreateCommand() *cobra.Command {
	opts := &businessCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new business",
		Example: `  billbook business create --name "Sharma Traders" --state 27 --gstin 27AAPFU0939F1ZV
  billbook business create --name "Corner Shop" --plan starter --no-drafts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc businessdomain.Service
			return runOnce(cmd.Context(), business.Module, func(ctx context.Context) error {
				created, err := svc.Create(ctx, businessdomain.CreateBusinessRequest{
					Name:                 opts.Name,
					PlanCode:             opts.Plan,
					GSTIN:                opts.GSTIN,
					StateCode:            opts.StateCode,
					GSTRegistered:        opts.GSTIN != "",
					DisableDraftWorkflow: opts.NoDrafts,
					InvoicePrefix:        opts.InvoicePrefix,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), created)
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "business name (required)")
	cmd.Flags().StringVar(&opts.Plan, "plan", "", "subscription plan code")
	cmd.Flags().StringVar(&opts.GSTIN, "gstin", "", "GST identification number")
	cmd.Flags().StringVar(&opts.StateCode, "state", "", "two digit GST state code")
	cmd.Flags().StringVar(&opts.InvoicePrefix, "invoice-prefix", "", "invoice number prefix")
	cmd.Flags().BoolVar(&opts.NoDrafts, "no-drafts", false, "issue invoices on create")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
