package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/config"
	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// openStore connects the configured backing store.
func openStore(ctx context.Context, cfg config.StoreConfig) (platform.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return platform.NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return platform.NewSQLite(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}
