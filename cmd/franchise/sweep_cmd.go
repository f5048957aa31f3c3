package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	partitionservices "github.com/iota-uz/franchise-core/modules/partition/services"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

func newSweepCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the partition retention sweep for one tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}

			app, ctx, closeDB, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			svc := app.Service(partitionservices.PartitionService{}).(*partitionservices.PartitionService)
			report, err := svc.RunRetentionSweep(composables.WithTenantID(ctx, tid))
			if err != nil {
				return err
			}
			cmd.Printf("sweep done: %d archived, %d dropped\n", report.Archived, report.Dropped)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
