package cmd

import (
	"context"
	"fmt"
	"os"

	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/config"
	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// runtime is what every database-backed subcommand starts from.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *store.DB
	settings *settings.Store
}

func (rt *runtime) Close() error {
	if rt.db == nil {
		return nil
	}
	return rt.db.Close()
}

// newLogger builds the process logger from the logging block.
func newLogger(cfg *config.Config) *logging.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Output = os.Stderr
	logCfg.Level = logging.ParseLevel(cfg.Logging.Level)
	logCfg.JSON = cfg.Logging.Format == "json"
	logCfg.AddSource = cfg.Logging.Source
	logging.SetPrefix(brand.BinaryName)
	logger := logging.New(logCfg)
	logging.SetDefault(logger)
	return logger
}

// openRuntime loads the config, opens and migrates the database and seeds
// the settings table. Settings from the config file only fill keys that are
// not in the database yet unless force is set.
func openRuntime(ctx context.Context, configFile string, force bool) (*runtime, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	db, err := store.Open(store.Options{
		Path:        cfg.Database.Path,
		WALMode:     cfg.WALMode(),
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if applied > 0 {
		logger.Info("database migrated", "path", cfg.Database.Path, "applied", applied)
	}

	if err := settings.Seed(ctx, db.SQL(), cfg.SettingOverrides(), force); err != nil {
		db.Close()
		return nil, err
	}
	st := settings.New()
	if err := st.Load(ctx, db.SQL()); err != nil {
		db.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, db: db, settings: st}, nil
}
