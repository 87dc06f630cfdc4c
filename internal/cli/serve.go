package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/outpost/pkg/mcp"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the outpost MCP server on standard input/output.

The server wires the store, catalog, expression engines, triage rules and
retention purger from configuration and exposes the processing pipeline as
MCP tools. Logs go to stderr; stdout carries the MCP transport.

Example:
  outpost serve --config ./outpost.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.cfg.Retention.Schedule != "" {
		if err := a.purger.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to start retention purger", err)
		}
	}
	defer func() {
		if err := a.purger.Stop(); err != nil {
			a.logger.Error("error stopping purger", "error", err)
		}
	}()

	srv := mcp.NewOutpostServer(mcp.OutpostServerDeps{
		Processor:  a.processor,
		Catalog:    a.catalog,
		Purger:     a.purger,
		CatalogDir: a.cfg.CatalogDir,
		Logger:     a.logger,
	})

	a.logger.Info("outpost server starting", "db", a.cfg.DBPath, "catalog_dir", a.cfg.CatalogDir)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	a.logger.Info("outpost server stopped")
	return nil
}
