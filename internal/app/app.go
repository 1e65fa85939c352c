// Package app wires configuration into the storage and pipeline components shared by the commands.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/config"
	"github.com/jengzang/shuttle-backend-go/internal/database"
	"github.com/jengzang/shuttle-backend-go/internal/insights"
)

// OpenDatabase opens the configured database and applies pending migrations
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DatabaseURL,
	})
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrationManager(db, cfg.DBDriver, logger).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// PipelineOptions selects the optional parts of the pipeline
type PipelineOptions struct {
	Offline  bool   // never call the model
	Seed     uint64 // overrides cfg.FallbackSeed when non-zero
	Observer insights.Observer
}

// NewPipeline builds the insights pipeline from configuration.
// Without an API key, or when offline, every request is served by the fallback.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts PipelineOptions) (*insights.Pipeline, error) {
	seed := cfg.FallbackSeed
	if opts.Seed != 0 {
		seed = opts.Seed
	}
	var fbOpts []insights.FallbackOption
	if seed != 0 {
		fbOpts = append(fbOpts, insights.WithSeed(seed))
	}

	pipeOpts := []insights.Option{
		insights.WithBudget(insights.NewDailyBudget(cfg.AIDailyLimit)),
		insights.WithFallback(insights.NewFallback(fbOpts...)),
		insights.WithLogger(logger),
		insights.WithAggregateOptions(insights.WithLocation(cfg.Location)),
	}
	if opts.Observer != nil {
		pipeOpts = append(pipeOpts, insights.WithObserver(opts.Observer))
	}

	switch {
	case opts.Offline:
		logger.Info("offline mode, AI disabled")
	case !cfg.AIEnabled():
		logger.Info("GEMINI_API_KEY not set, AI disabled")
	default:
		gen, err := insights.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info("AI enabled", zap.String("model", gen.Model()), zap.Int("daily_limit", cfg.AIDailyLimit))
		pipeOpts = append(pipeOpts, insights.WithGenerator(gen))
	}

	return insights.NewPipeline(pipeOpts...), nil
}
