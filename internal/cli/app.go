package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/outpost/internal/catalog"
	"github.com/rendis/outpost/internal/config"
	"github.com/rendis/outpost/internal/expressions"
	"github.com/rendis/outpost/internal/logging"
	"github.com/rendis/outpost/internal/processor"
	"github.com/rendis/outpost/internal/retention"
	"github.com/rendis/outpost/internal/rules"
	"github.com/rendis/outpost/internal/secrets"
	"github.com/rendis/outpost/internal/store"
)

// app bundles the wired pipeline shared by commands that touch the store.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	catalog   *catalog.Catalog
	processor *processor.Processor
	purger    *retention.Purger
}

// loadConfig reads the layered configuration for a command.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the command logger. Logs go to stderr so stdout stays
// clean for command output and the MCP stdio transport. The correlation
// handler picks execution IDs out of the context on every record.
func newLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildCatalog creates a catalog and loads the configured directory.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	cat := catalog.NewCatalog(logger)
	if cfg.CatalogDir != "" {
		if _, err := cat.LoadDir(ctx, cfg.CatalogDir); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
	}
	return cat, nil
}

// buildApp wires the full pipeline from configuration.
func buildApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, opts.Verbose)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
		}
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	wired := false
	defer func() {
		if !wired {
			st.Close()
		}
	}()

	if err := st.Migrate(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to migrate store", err)
	}

	cat, err := buildCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build expression engines", err)
	}

	var ruleEngine *rules.Engine
	if cfg.RulesPath != "" {
		ruleEngine = rules.NewEngine(engines, logger)
		if _, err := ruleEngine.LoadFile(cfg.RulesPath); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load rules", err)
		}
	}

	var sealer secrets.Sealer
	if cfg.Seal.Enabled() {
		sealer, err = secrets.NewAESSealer(secrets.SealerConfig{
			Passphrase: cfg.Seal.Passphrase,
			Salt:       []byte(cfg.Seal.Salt),
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to build sealer", err)
		}
	}

	proc, err := processor.New(processor.Config{
		Catalog: cat,
		Store:   st,
		Engines: engines,
		Rules:   ruleEngine,
		Sealer:  sealer,
		Logger:  logger,
		Options: processor.Options{
			ValidateOutput: cfg.ValidateOutput,
			MaskOnStore:    cfg.MaskOnStore,
			PoolSize:       cfg.PoolSize,
		},
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build processor", err)
	}

	purger, err := retention.NewPurger(st, retention.Config{
		Schedule: cfg.Retention.Schedule,
		MaxAge:   cfg.Retention.MaxAge(),
		Statuses: cfg.Retention.StatusList(),
	}, logger)
	if err != nil {
		proc.Shutdown()
		return nil, WrapExitError(ExitCommandError, "failed to build retention purger", err)
	}

	wired = true
	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		catalog:   cat,
		processor: proc,
		purger:    purger,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.processor.Shutdown()
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing store", "error", err)
	}
}
