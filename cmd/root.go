package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juliomeza/memory-card/internal/config"
	"github.com/juliomeza/memory-card/internal/database"
	"github.com/juliomeza/memory-card/internal/logging"
	"github.com/juliomeza/memory-card/internal/metrics"
	"github.com/juliomeza/memory-card/internal/review"
	"github.com/juliomeza/memory-card/internal/spaced_repetition"
)

var rootCmd = &cobra.Command{
	Use:           "memory-card",
	Short:         "Spaced-repetition flashcard reviewer",
	Long:          "memory-card serves flashcard review sessions over Telegram and the terminal, scheduling each concept with a doubling interval.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database DSN: SQLite file path or PostgreSQL URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to an optional .env file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statsCmd)
}

// app bundles what the commands share
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *database.DB
	concepts *database.ConceptRepository
	progress *database.ProgressRepository
	users    *database.UserRepository
	stats    *database.StatisticsRepository
}

// setup loads the configuration, builds the logger and opens the database.
// --db takes precedence over DATABASE_URL.
func setup(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	db, err := database.Open(ctx, cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		logger.Sync()
		return nil, errors.Wrap(err, "failed to open database")
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		concepts: database.NewConceptRepository(db),
		progress: database.NewProgressRepository(db),
		users:    database.NewUserRepository(db),
		stats:    database.NewStatisticsRepository(db),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	a.logger.Sync()
}

// reviewService builds a review service from the configuration. filter
// may be empty for the default.
func (a *app) reviewService(filter string, collector *metrics.Collector) (*review.Service, error) {
	grouping, err := spaced_repetition.ParseGrouping(a.cfg.Grouping)
	if err != nil {
		return nil, err
	}
	order, err := spaced_repetition.ParseOrder(a.cfg.Order)
	if err != nil {
		return nil, err
	}
	f, err := spaced_repetition.ParseFilter(filter)
	if err != nil {
		return nil, err
	}

	return review.New(a.concepts, a.progress, review.Options{
		BatchSize:        a.cfg.BatchSize,
		Grouping:         grouping,
		Order:            order,
		Filter:           f,
		AsyncPersistence: a.cfg.AsyncPersistence,
		IntervalWarnDays: a.cfg.IntervalWarnDays,
		Logger:           a.logger,
		Metrics:          collector,
	}), nil
}
