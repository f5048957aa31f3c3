package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	aggregationservices "github.com/iota-uz/franchise-core/modules/aggregation/services"
	hierarchyservices "github.com/iota-uz/franchise-core/modules/hierarchy/services"
	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
	permissionpersistence "github.com/iota-uz/franchise-core/modules/permission/infrastructure/persistence"
	"github.com/iota-uz/franchise-core/modules/tenant/domain/entities/tenant"
	tenantservices "github.com/iota-uz/franchise-core/modules/tenant/services"
	"github.com/iota-uz/franchise-core/pkg/application"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// newSeedCmd provisions a demo tenant: a three-level hierarchy, an owner
// grant on the root for the given user and a month of revenue records.
func newSeedCmd() *cobra.Command {
	var (
		tenantID string
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo franchise hierarchy with permissions and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			app, ctx, closeDB, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			if err := app.Migrations().Apply(ctx); err != nil {
				return err
			}

			ctx = composables.WithTenantID(ctx, tid)
			ctx = composables.WithUserID(ctx, uid)
			if err := seed(ctx, app, tid, uid); err != nil {
				return err
			}
			cmd.Println("seed complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&userID, "user", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func seed(ctx context.Context, app application.Application, tenantID, userID uuid.UUID) error {
	tenantSvc := app.Service(tenantservices.TenantService{}).(*tenantservices.TenantService)
	if _, err := tenantSvc.ConfigureTenant(ctx, tenantID, tenant.Partial{
		Limits: &tenant.Limits{
			MaxLocations: 100,
			MaxUsers:     500,
			FeatureFlags: map[string]bool{"cross_location_aggregation": true},
		},
		Billing: &tenant.Billing{Plan: "growth", MonthlyFee: decimal.NewFromInt(499)},
	}); err != nil {
		return err
	}

	hierarchySvc := app.Service(hierarchyservices.HierarchyService{}).(*hierarchyservices.HierarchyService)
	root, err := hierarchySvc.CreateNode(ctx, hierarchyservices.CreateNodeInput{
		Name: "Acme Franchising",
		Type: "franchisor",
	})
	if err != nil {
		return err
	}
	rootID := root.ID()
	region, err := hierarchySvc.CreateNode(ctx, hierarchyservices.CreateNodeInput{
		Name:     "North Region",
		Type:     "region",
		ParentID: &rootID,
	})
	if err != nil {
		return err
	}
	regionID := region.ID()

	var locationIDs []uuid.UUID
	for i := 1; i <= 2; i++ {
		location, err := hierarchySvc.CreateNode(ctx, hierarchyservices.CreateNodeInput{
			Name:     fmt.Sprintf("Store %d", i),
			Type:     "location",
			ParentID: &regionID,
		})
		if err != nil {
			return err
		}
		locationIDs = append(locationIDs, location.ID())
	}

	// The first owner grant is inserted directly: there is no prior granter
	// to delegate from.
	grants := permissionpersistence.NewGrantRepository()
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		_, err := grants.Create(txCtx, grant.New(
			tenantID, userID, hierarchyservices.ResourceTypeNode, root.ID(), grant.LevelOwner, userID,
		))
		return err
	})
	if err != nil {
		return err
	}

	aggregationSvc := app.Service(aggregationservices.AggregationService{}).(*aggregationservices.AggregationService)
	now := time.Now().UTC()
	for day := 0; day < 30; day++ {
		recordedAt := now.AddDate(0, 0, -day)
		for i, locationID := range locationIDs {
			value := decimal.NewFromInt(int64(300 + 400*i))
			if err := aggregationSvc.RecordMetric(ctx, locationID, "revenue", value, recordedAt); err != nil {
				return err
			}
		}
	}
	return nil
}
