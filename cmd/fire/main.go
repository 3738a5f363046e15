package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fire-routing/backend/internal/classify"
	"github.com/fire-routing/backend/internal/config"
	"github.com/fire-routing/backend/internal/geocode"
)

func main() {
	root := &cobra.Command{
		Use:           "fire",
		Short:         "AI-assisted customer ticket routing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), processCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return log.Level(level).With().Str("service", "fire-routing").Logger()
}

// newOracle picks the classification backend: Groq when a key is configured,
// otherwise the deterministic mock so the engine runs offline.
func newOracle(cfg config.Config, logger zerolog.Logger) classify.Oracle {
	if cfg.GroqAPIKey == "" {
		logger.Info().Msg("GROQ_API_KEY not set, using mock oracle")
		return &classify.MockOracle{}
	}
	return classify.NewGroqOracle(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.TextModel, cfg.VisionModel)
}

func newGeocoder(cfg config.Config) geocode.Geocoder {
	return &geocode.NominatimGeocoder{
		BaseURL:     cfg.NominatimURL,
		UserAgent:   cfg.NominatimUA,
		MinInterval: cfg.NominatimInterval,
	}
}
