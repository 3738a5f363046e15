package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fire-routing/backend/internal/config"
	"github.com/fire-routing/backend/internal/db"
	httpapi "github.com/fire-routing/backend/internal/http"
	"github.com/fire-routing/backend/internal/routing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			store, err := db.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}

			router := httpapi.Router(cfg, store, newOracle(cfg, logger), newGeocoder(cfg), routing.NewFairnessState(), logger)

			srv := &http.Server{
				Addr:    ":" + cfg.Port,
				Handler: router,
			}

			go func() {
				logger.Info().Str("port", cfg.Port).Msg("server started")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server error")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctxShutdown)
			logger.Info().Msg("server stopped")
			return nil
		},
	}
}
