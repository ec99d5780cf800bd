package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/endereco"
	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/hooks"
	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/schema"
	"github.com/devix-tecnologia/directus-extension-endereco-br/pkg/geocode"
	"github.com/devix-tecnologia/directus-extension-endereco-br/pkg/viacep"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the address service",
	Long:  "Reconciles the address schema, then serves the CEP lookup endpoint and the hooked address item routes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close() //nolint:errcheck

		// Schema convergence runs on every start; it is idempotent.
		reconciler, err := newReconciler(store)
		if err != nil {
			return err
		}
		if _, err := reconciler.Run(ctx); err != nil {
			return eris.Wrap(err, "reconcile schema")
		}

		cepClient := newCepClient()

		var geocoder geocode.Client
		if cfg.Geolocation.AuthToken == "" {
			zap.L().Warn("geolocation auth token not configured, geocoding disabled")
		} else {
			geocoder, err = geocode.NewClient(cfg.Geolocation.Provider, cfg.Geolocation.AuthToken,
				geocode.WithHTTPClient(&http.Client{
					Timeout: time.Duration(cfg.Geolocation.TimeoutSecs) * time.Second,
				}))
			if err != nil {
				return eris.Wrap(err, "configure geocoder")
			}
		}

		bus := hooks.NewBus()
		hooks.RegisterAddress(bus,
			endereco.NewEnricher(endereco.NewResolver(store)),
			endereco.NewDispatcher(store, geocoder))

		router := newRouter(cepClient, hooks.NewItems(bus, store, "endereco_br"))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("store", cfg.Store.Driver),
			zap.String("provider", cfg.Geolocation.Provider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let in-flight geocoding actions finish before closing the store.
		bus.Drain()
		return nil
	},
}

func newReconciler(store platform.Store) (*schema.Reconciler, error) {
	desc, err := schema.LoadDescriptor()
	if err != nil {
		return nil, eris.Wrap(err, "load schema descriptor")
	}
	seed, err := schema.LoadSeed()
	if err != nil {
		return nil, eris.Wrap(err, "load seed data")
	}
	return schema.NewReconciler(store, desc, seed), nil
}

func newCepClient() viacep.Client {
	opts := []viacep.Option{}
	if cfg.ViaCep.BaseURL != "" {
		opts = append(opts, viacep.WithBaseURL(cfg.ViaCep.BaseURL))
	}
	if cfg.ViaCep.RateLimit > 0 {
		opts = append(opts, viacep.WithRateLimit(cfg.ViaCep.RateLimit))
	}
	if cfg.ViaCep.TimeoutSecs > 0 {
		opts = append(opts, viacep.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.ViaCep.TimeoutSecs) * time.Second,
		}))
	}
	return viacep.NewClient(opts...)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
