package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "enderecobr",
	Short: "Brazilian address schema and enrichment service",
	Long:  "Provisions the Brazilian address schema (country/state/city/neighborhood/address), enriches addresses from CEP lookups, and geocodes them via Google or Mapbox.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
