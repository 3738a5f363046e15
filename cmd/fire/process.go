package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fire-routing/backend/internal/classify"
	"github.com/fire-routing/backend/internal/config"
	"github.com/fire-routing/backend/internal/geo"
	"github.com/fire-routing/backend/internal/geocode"
	"github.com/fire-routing/backend/internal/models"
	"github.com/fire-routing/backend/internal/routing"
	"github.com/fire-routing/backend/internal/tabular"
)

// processCmd routes a batch of tickets from local files, without a database:
// the original spreadsheet-in, spreadsheet-out workflow.
func processCmd() *cobra.Command {
	var (
		ticketsPath  string
		managersPath string
		officesPath  string
		outPath      string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Route a batch of tickets from CSV/XLSX files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			tickets, err := loadTickets(ticketsPath)
			if err != nil {
				return err
			}
			managers, err := loadManagers(managersPath)
			if err != nil {
				return err
			}
			offices, err := loadOffices(officesPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			geocoder := newGeocoder(cfg)
			offices, err = geocode.ResolveOffices(ctx, geocoder, offices, cfg.CountryDefault, cfg.GeoCachePath, logger)
			if err != nil {
				logger.Warn().Err(err).Msg("office coordinate cache not written")
			}

			state := routing.NewFairnessState()
			pipeline := &routing.Pipeline{
				Classifier: &classify.Client{Oracle: newOracle(cfg, logger), Attempts: cfg.ClassifyAttempts, Logger: logger},
				Geocoder:   geocoder,
				Resolver:   &routing.Resolver{Fallbacks: cfg.Fallbacks(), State: state, Logger: logger},
				Engine:     routing.NewEngine(state, managers, logger),
				Index:      geo.NewIndex(offices),
				Logger:     logger,

				AttachmentDir: cfg.AttachmentDir,
			}

			results, summary := pipeline.Run(ctx, tickets)

			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer out.Close()
			if err := tabular.WriteResults(out, results); err != nil {
				return err
			}

			logger.Info().
				Int("processed", summary.Processed).
				Int("assigned", summary.Assigned).
				Int("cross_office", summary.CrossOffice).
				Int("unassigned", summary.Unassigned).
				Int("spam", summary.Spam).
				Int("classify_errors", summary.ClassifyErrors).
				Str("out", outPath).
				Msg("batch finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&ticketsPath, "tickets", "tickets.csv", "tickets table (csv or xlsx)")
	cmd.Flags().StringVar(&managersPath, "managers", "managers.csv", "managers table (csv or xlsx)")
	cmd.Flags().StringVar(&officesPath, "offices", "offices.csv", "offices table (csv or xlsx)")
	cmd.Flags().StringVar(&outPath, "out", "assignments.csv", "output csv path")
	return cmd
}

func loadTickets(path string) ([]models.Ticket, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	tickets, errs := tabular.ParseTickets(rows)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %d rows rejected (%s)", path, len(errs), errs[0])
	}
	return tickets, nil
}

func loadManagers(path string) ([]models.Manager, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	managers, errs := tabular.ParseManagers(rows)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %d rows rejected (%s)", path, len(errs), errs[0])
	}
	return managers, nil
}

func loadOffices(path string) ([]models.Office, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	offices, errs := tabular.ParseOffices(rows)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %d rows rejected (%s)", path, len(errs), errs[0])
	}
	return offices, nil
}

func readTable(path string) ([][]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return tabular.ReadRows(content, path)
}
