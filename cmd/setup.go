package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Reconcile the address schema once and exit",
	Long:  "Creates missing collections, fields, relations and seed rows, then exits. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close() //nolint:errcheck

		reconciler, err := newReconciler(store)
		if err != nil {
			return err
		}
		summary, err := reconciler.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "reconcile schema")
		}

		fmt.Printf("collections created: %d\n", summary.CollectionsCreated)
		fmt.Printf("fields created:      %d\n", summary.FieldsCreated)
		fmt.Printf("relations created:   %d\n", summary.RelationsCreated)
		fmt.Printf("countries seeded:    %d\n", summary.CountriesSeeded)
		fmt.Printf("states seeded:       %d\n", summary.StatesSeeded)
		if len(summary.SkippedCollections) > 0 {
			fmt.Printf("skipped:             %v\n", summary.SkippedCollections)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
