package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tsarna/reverser/pkg/reverser/config"
	"github.com/tsarna/reverser/pkg/reverser/dispatch"
	"github.com/tsarna/reverser/pkg/reverser/handler"
	"github.com/tsarna/reverser/pkg/reverser/otel"
	"github.com/tsarna/reverser/pkg/reverser/reverse"
	"github.com/tsarna/reverser/pkg/reverser/server"
	"github.com/tsarna/reverser/pkg/reverser/web"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server [config-files-or-directories...]",
	Short: "Start the reverser server",
	Long: `Start the reverser server, optionally with configuration files or directories.

Directories are searched recursively for *.rcl files. Without any
configuration the server listens on :5000 and only accepts WebSocket
connections from pages it served itself. Flags override file values.

Examples:
  reverser server
  reverser server reverser.rcl
  reverser server ./conf.d/ --origin '*'
  reverser server --listen 127.0.0.1:8080 --unit grapheme`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	addServerFlags(serverCmd.Flags())
}

func addServerFlags(flags *pflag.FlagSet) {
	flags.String("listen", config.DefaultListen, "address to listen on")
	flags.StringArray("origin", nil, "allowed cross-origin host or URL (repeatable, '*' for any)")
	flags.String("unit", "codepoint", "default reversal unit (codepoint, grapheme)")
}

func runServer(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting reverser server",
		zap.Strings("config-paths", args),
		zap.String("version", Version),
	)

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(args)...).
		Build()
	if diags.HasErrors() {
		logger.Error("Failed to build config", zap.Any("diags", diags))
		return diags
	}

	if err := applyOverrides(cmd.Flags(), &cfg.Server); err != nil {
		return err
	}

	httpServer, listener, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening",
			zap.String("listen", cfg.Server.Listen),
			zap.String("ws-path", cfg.Server.WSPath),
			zap.Stringer("unit", cfg.Server.ReverseUnit),
		)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// WebSocket connections are hijacked, so http.Server.Shutdown does not wait for them.
	if err := listener.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket connections did not close in time", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// applyOverrides copies explicitly set flags over the file configuration.
func applyOverrides(flags *pflag.FlagSet, cfg *config.ServerConfig) error {
	if flags.Changed("listen") {
		listen, err := flags.GetString("listen")
		if err != nil {
			return err
		}
		cfg.Listen = listen
	}

	if flags.Changed("origin") {
		origins, err := flags.GetStringArray("origin")
		if err != nil {
			return err
		}
		cfg.AllowedOrigins = origins
	}

	if flags.Changed("unit") {
		name, err := flags.GetString("unit")
		if err != nil {
			return err
		}
		unit, err := reverse.ParseUnit(name)
		if err != nil {
			return fmt.Errorf("invalid --unit: %w", err)
		}
		cfg.ReverseUnit = unit
	}

	return nil
}

// newServer wires the dispatch table, WebSocket listener and HTTP routes
// described by cfg.
func newServer(cfg *config.Config, logger *zap.Logger) (*http.Server, *server.Listener, error) {
	router := dispatch.NewRouter()
	if err := handler.Register(router, cfg.Server.ReverseUnit); err != nil {
		return nil, nil, fmt.Errorf("failed to register handlers: %w", err)
	}

	listenerConfig := server.NewListenerConfig().
		WithRouter(router).
		WithLogger(logger).
		WithQueueSize(cfg.Server.QueueSize).
		WithPingInterval(cfg.Server.PingInterval).
		WithWriteTimeout(cfg.Server.WriteTimeout).
		WithReadLimit(cfg.Server.ReadLimit).
		WithAllowedOrigins(cfg.Server.AllowedOrigins...)

	if cfg.Telemetry.Enabled {
		provider := otel.NewProvider(cfg.Telemetry.ServiceName, Version)
		listenerConfig.WithMetrics(provider).WithTracing(provider)
	}

	listener, err := listenerConfig.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create WebSocket listener: %w", err)
	}

	routes, err := web.NewHandlerConfig().
		WithWebSocket(listener).
		WithLogger(logger).
		WithWSPath(cfg.Server.WSPath).
		WithAllowedOrigins(cfg.Server.AllowedOrigins...).
		Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP handler: %w", err)
	}

	return &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}, listener, nil
}

// Helper to convert []string to []any
func stringSliceToAnySlice(strs []string) []any {
	anys := make([]any, len(strs))
	for i, s := range strs {
		anys[i] = s
	}
	return anys
}
