package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/runger/capmatch/internal/catalog"
	"github.com/runger/capmatch/internal/config"
	"github.com/runger/capmatch/internal/engine"
	"github.com/runger/capmatch/internal/log"
	"github.com/runger/capmatch/internal/store"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "capmatch",
	Short: "capability recommendations for coding prompts",
	Long: `capmatch scores a catalog of agents and skills against a prompt and
the surrounding project, and recommends the best matches.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.capmatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default ~/.capmatch/capmatch.db)")

	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtime bundles everything a command needs. Close releases the
// database.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *sql.DB
	catalog *catalog.SQLiteCatalog
	store   *store.Store
	engine  *engine.Engine
}

func (r *runtime) Close() error {
	return r.db.Close()
}

// newRuntime loads the config, opens the database, and wires the engine.
func newRuntime(ctx context.Context) (*runtime, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = parseLevel(cfg.LogLevel)
	logCfg.Debug = os.Getenv("CAPMATCH_DEBUG") == "1"
	logger := log.New(logCfg)

	resolved := dbPath
	if resolved == "" {
		resolved, err = cfg.ResolveDatabasePath()
		if err != nil {
			return nil, err
		}
	}

	db, err := store.OpenDB(ctx, resolved)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.NewSQLiteCatalog(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	st := store.New(db, logger)
	eng, err := engine.New(engine.Deps{
		Persistence: st,
		Catalog:     cat,
		Logger:      logger,
	}, cfg.EngineConfig())
	if err != nil {
		db.Close()
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		catalog: cat,
		store:   st,
		engine:  eng,
	}, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func formatConfidence(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
