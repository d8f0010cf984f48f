package main

import (
	"context"

	"github.com/smallbiznis/billbook/internal/business"
	"github.com/smallbiznis/billbook/internal/sequence"
	sequencedomain "github.com/smallbiznis/billbook/internal/sequence/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type sequenceRepairOptions struct {
	OrgID        string
	DocumentType string
}

// NewSequencesCommand groups document number maintenance.
func NewSequencesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequences",
		Short: "Inspect and repair document number sequences",
	}
	cmd.AddCommand(newSequenceRepairCommand())
	return cmd
}

func newSequenceRepairCommand() *cobra.Command {
	opts := &sequenceRepairOptions{}

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Reseed counters from the highest number already used",
		Long: `repair moves each counter of a business past the highest document number
stored for it. Run it after restoring a backup or importing documents
numbered outside the allocator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrgID(opts.OrgID)
			if err != nil {
				return err
			}
			var svc sequencedomain.Service
			modules := fx.Options(business.Module, sequence.Module)
			return runOnce(cmd.Context(), modules, func(ctx context.Context) error {
				if opts.DocumentType != "" {
					seq, err := svc.Repair(ctx, orgID, opts.DocumentType)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), []sequencedomain.Sequence{seq})
				}
				seqs, err := svc.RepairAll(ctx, orgID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), seqs)
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&opts.OrgID, "org", "", "business id (required)")
	cmd.Flags().StringVar(&opts.DocumentType, "type", "", "document type to repair; all types when empty")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}
