package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/franchise-core/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply every module's schema to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, closeDB, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			if err := app.Migrations().Apply(cmd.Context()); err != nil {
				return err
			}
			configuration.Use().Logger().Info("schema applied")
			return nil
		},
	}
}
