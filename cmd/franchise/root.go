package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "franchise",
		Short: "Franchise core management tools",
	}
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

func execute() {
	_ = newRootCmd().Execute()
}
