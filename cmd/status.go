package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report how much of the address schema exists",
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
		present, total, err := reconciler.Check(ctx)
		if err != nil {
			return eris.Wrap(err, "check schema")
		}

		fmt.Printf("collections present: %d/%d\n", present, total)
		if present < total {
			fmt.Println("run `enderecobr setup` to create the missing collections")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
