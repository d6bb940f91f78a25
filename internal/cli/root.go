package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/PCreations/syncview/internal/engine"
	"github.com/PCreations/syncview/internal/local"
	"github.com/PCreations/syncview/internal/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ServerURL string
	CachePath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the syncview CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncview",
		Short: "syncview - live query views over a sync backend",
		Long: "syncview maintains ordered, incrementally updated query views over a\n" +
			"document sync backend, with a durable local cache and optimistic writes.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "", "sync backend websocket URL")
	cmd.PersistentFlags().StringVar(&opts.CachePath, "cache", "", "local cache database path")

	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewWriteCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger builds the slog logger per the global flags.
func (o *RootOptions) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

// config resolves the effective configuration, flags over environment.
func (o *RootOptions) config() (*Config, error) {
	return LoadConfig(map[string]string{
		"server.url": o.ServerURL,
		"cache.path": o.CachePath,
	})
}

// openEngine wires persistence, transport and engine, and starts the
// event loop. The returned shutdown function stops everything.
func openEngine(ctx context.Context, opts *RootOptions) (*engine.Engine, func(), error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, nil, err
	}
	logger := opts.logger()

	store, err := local.OpenSQLite(cfg.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache %s: %w", cfg.Cache.Path, err)
	}

	transport := remote.NewWebsocketTransport(cfg.Server.URL, logger)

	eng, err := engine.New(ctx, store, transport, engine.WithLogger(logger))
	if err != nil {
		transport.Close()
		store.Close()
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := eng.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("engine loop exited", "error", err)
		}
	}()
	eng.EnableNetwork()

	shutdown := func() {
		cancel()
		eng.Close()
		<-done
	}
	return eng, shutdown, nil
}
