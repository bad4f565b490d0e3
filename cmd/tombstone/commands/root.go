package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-tombstone/internal/catalog"
	"github.com/marshallshelly/pebble-tombstone/internal/config"
	"github.com/marshallshelly/pebble-tombstone/internal/logger"
	"github.com/marshallshelly/pebble-tombstone/pkg/cascade"
	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
	"github.com/marshallshelly/pebble-tombstone/pkg/store/pgstore"
)

var (
	// Global flags
	dbURL      string
	configPath string
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tombstone",
	Short: "Reversible, cascading soft deletes for PostgreSQL",
	Long: `tombstone marks catalog records as deleted without removing them, cascades the
change to their dependents and restores exactly what one delete removed.

Every delete stamps a batch id on the record and everything it cascaded to;
restoring the record brings back that batch and nothing else.`,
	Version:       "0.4.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (overrides "+config.EnvDatabaseURL+")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig applies the global flags on top of config.Load.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return cfg, logger.New(os.Stderr, level), nil
}

// app is the engine wired to PostgreSQL and an in-process queue.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *runtime.DB
	store  *pgstore.Store
	queue  *queue.Memory
	engine *cascade.Engine
}

func connect(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("--db flag or %s is required", config.EnvDatabaseURL)
	}

	db, err := runtime.ConnectWithURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	st := pgstore.New(db)
	q := queue.NewMemory(queue.WithLogger(log))
	engine, err := cascade.New(cfg.Cascade, st, q, cascade.WithLogger(log))
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := catalog.Register(engine); err != nil {
		db.Close()
		return nil, err
	}
	engine.RegisterJobs(q)

	return &app{cfg: cfg, log: log, db: db, store: st, queue: q, engine: engine}, nil
}

// finish runs every deferred unit the command scheduled.
func (a *app) finish(ctx context.Context) error {
	if n := len(a.queue.Pending()); n > 0 {
		a.log.Info("running deferred cascades", "units", n)
	}
	return a.queue.Drain(ctx)
}

func (a *app) Close() {
	a.db.Close()
}
