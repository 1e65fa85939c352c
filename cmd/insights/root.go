package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/app"
	"github.com/jengzang/shuttle-backend-go/internal/config"
	"github.com/jengzang/shuttle-backend-go/internal/logging"
	"github.com/jengzang/shuttle-backend-go/internal/models"
	"github.com/jengzang/shuttle-backend-go/internal/repository"
	"github.com/jengzang/shuttle-backend-go/internal/service"
	"github.com/jengzang/shuttle-backend-go/internal/snapshot"
)

// cli holds the global flags and the state built from them
type cli struct {
	snapshotPath string
	offline      bool
	seed         uint64
	verbose      bool

	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
}

// execute runs the command line and releases the database and logger on every exit path
func (c *cli) execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (c *cli) close() {
	if c.db != nil {
		c.db.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "insights",
		Short: "Shuttle demand predictions, schedule optimizations and admin chat",
		Long: `insights runs the shuttle recommendation pipeline against a snapshot file
or the configured database.

Without GEMINI_API_KEY, or with --offline, every answer comes from the
deterministic fallback generator.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg

			level := cfg.LogLevel
			if c.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.LogFormat)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.snapshotPath, "snapshot", "s", "", "snapshot file (.json, .yaml); defaults to the database")
	root.PersistentFlags().BoolVar(&c.offline, "offline", false, "never call the model")
	root.PersistentFlags().Uint64Var(&c.seed, "seed", 0, "fallback random seed (0 = config or random)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.predictCmd(),
		c.optimizeCmd(),
		c.chatCmd(),
		c.statsCmd(),
		c.importCmd(),
		c.tokenCmd(),
	)
	return root
}

// database opens the configured database once per invocation
func (c *cli) database(ctx context.Context) (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := app.OpenDatabase(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

// service builds the insights service. With --snapshot the database is not touched
// and runs are not recorded.
func (c *cli) service(ctx context.Context) (*service.InsightsService, error) {
	pipeline, err := app.NewPipeline(ctx, c.cfg, c.logger, app.PipelineOptions{Offline: c.offline, Seed: c.seed})
	if err != nil {
		return nil, err
	}

	opts := service.Options{Timeout: c.cfg.AITimeout, Logger: c.logger}
	if c.snapshotPath == "" {
		db, err := c.database(ctx)
		if err != nil {
			return nil, err
		}
		opts.Loader = repository.NewAnalyticsRepository(db, c.cfg.DBDriver)
		opts.Runs = repository.NewRecommendationRepository(db, c.cfg.DBDriver)
	}
	return service.NewInsightsService(pipeline, opts), nil
}

// snapshot reads --snapshot. A nil result makes the service load from the database.
func (c *cli) snapshot() (*models.AnalyticsData, error) {
	if c.snapshotPath == "" {
		return nil, nil
	}
	return snapshot.LoadFile(c.snapshotPath)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
