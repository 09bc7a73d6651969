package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/internal/config"
	"github.com/ksred/tradejournal/internal/database"
	"github.com/ksred/tradejournal/internal/docstore"
	"github.com/ksred/tradejournal/internal/journal"
	"github.com/ksred/tradejournal/internal/types"
)

var dryRun bool

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "One-off data migrations for the trade journal",
}

var legacyTradesCmd = &cobra.Command{
	Use:   "legacy-trades",
	Short: "Convert flat trade documents into enveloped equity trades",
	Long: `Scans the trades collection for documents without a tenant envelope,
resolves each document's username against the identity store and rewrites it
as an equity trade owned by that user. Documents that cannot be converted are
left in place and listed in the report. Safe to run repeatedly.`,
	RunE: runLegacyTrades,
}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	legacyTradesCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be converted without writing")
	rootCmd.AddCommand(legacyTradesCmd)
}

func runLegacyTrades(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	docs, err := docstore.Connect(ctx, docstore.ConnectOptions{
		URI:      cfg.Docstore.URI,
		Database: cfg.Docstore.Database,
		Retries:  cfg.Docstore.ConnectRetries,
	})
	if err != nil {
		return err
	}
	defer docs.Close(context.Background())

	legacy, err := journal.NewMongoLegacyStore(docs)
	if err != nil {
		return err
	}

	authService := auth.NewService(db, auth.Options{JWTSecret: cfg.Auth.JWTSecret})
	trades := docstore.NewRepository[types.Trade](docs, journal.TradesCollection)
	service := journal.NewService(trades, journal.NewValidator(cfg.Vocabulary), nil)

	report, err := service.MigrateLegacy(ctx, legacy, authService, dryRun)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
