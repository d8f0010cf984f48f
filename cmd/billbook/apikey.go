package main

import (
	"context"

	"github.com/smallbiznis/billbook/internal/apikey"
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	"github.com/spf13/cobra"
)

type apiKeyCreateOptions struct {
	OrgID  string
	Name   string
	Scopes []string
}

// NewAPIKeyCommand bootstraps keys for a business. The first admin key has
// to come from here since the HTTP admin routes need one.
func NewAPIKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage device API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCommand())
	return cmd
}

func newAPIKeyCreateCommand() *cobra.Command {
	opts := &apiKeyCreateOptions{}

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an API key and print its secret once",
		Example: `  billbook apikey create --org 1790000000000000000 --name "Owner laptop" --scope admin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrgID(opts.OrgID)
			if err != nil {
				return err
			}
			var svc apikeydomain.Service
			return runOnce(cmd.Context(), apikey.Module, func(ctx context.Context) error {
				secret, err := svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: opts.Name, Scopes: opts.Scopes})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), secret)
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&opts.OrgID, "org", "", "business id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "key name (required)")
	cmd.Flags().StringSliceVar(&opts.Scopes, "scope", nil, "scope to grant, repeatable; defaults to the device scopes")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
