// Command llmrelay runs the proxy server described by a YAML config
// snapshot, in place of the teacher's flag-driven CLASP CLI -- grounded on
// the cobra command structure used elsewhere in the examples pack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/authkeys"
	"github.com/llmrelay/llmrelay/internal/concurrency"
	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/httpapi"
	"github.com/llmrelay/llmrelay/internal/logging"
	"github.com/llmrelay/llmrelay/internal/parser"
	"github.com/llmrelay/llmrelay/internal/registry"
	"github.com/llmrelay/llmrelay/internal/router"
)

var (
	version = "dev"

	flagConfig string
	flagAddr   string
	flagLevel  string
	flagJSON   bool
)

func main() {
	root := &cobra.Command{
		Use:     "llmrelay",
		Short:   "OpenAI/Anthropic-compatible routing proxy",
		Version: version,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to the YAML config snapshot (defaults to LLMRELAY_CONFIG or ./config.yaml)")
	root.PersistentFlags().StringVar(&flagLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&flagJSON, "log-json", true, "emit logs as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the proxy server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "address to listen on")

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "validate the config file without starting the server",
		RunE:  runDoctor,
	}

	root.AddCommand(serveCmd, doctorCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	path := config.ConfigPath(flagConfig)
	snap, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("llmrelay doctor: %w", err)
	}
	backends := snap.Backends()
	fmt.Printf("config OK: %s\n", path)
	fmt.Printf("  backends: %d\n", len(backends))
	for _, b := range backends {
		fmt.Printf("    - %s -> %s (fallbacks: %v)\n", b.Name, b.BaseURL, b.Fallbacks)
	}
	fmt.Printf("  num_retries: %d\n", snap.NumRetries())
	fmt.Printf("  app_keys: %d\n", len(snap.AuthKeys()))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Configure(flagLevel, flagJSON); err != nil {
		return err
	}
	defer logging.Sync()

	path := config.ConfigPath(flagConfig)
	httpapi.ConfigPath = path

	snap, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("llmrelay serve: %w", err)
	}

	reg := registry.New()
	if err := reg.Reload(snap.Backends()); err != nil {
		return fmt.Errorf("llmrelay serve: loading backends: %w", err)
	}

	rtr := router.New(reg, router.Options{NumRetries: snap.NumRetries(), Logger: routerLogger{}})

	concMgr := concurrency.New(concurrency.Options{
		DefaultLimit:    0,
		DefaultPriority: 0,
		QueueTimeout:    30 * time.Second,
		MaxQueueDepth:   1000,
	})
	for _, k := range snap.AuthKeys() {
		if k.Limit > 0 || k.Priority != 0 {
			concMgr.SetOverride(concurrency.KeyOverride{Key: k.Value, Limit: k.Limit, Priority: k.Priority})
		}
	}

	pipeline := parser.Build(snap.ParserBuildOptions(), func(msg string) {
		logging.L().Warn("parser pipeline reordered", zap.String("reason", msg))
	})

	authStore := authkeys.New(snap.AuthKeys())

	engine := &httpapi.Engine{
		Registry:          reg,
		Router:            rtr,
		Concurrency:       concMgr,
		Pipeline:          pipeline,
		AuthStore:         authStore,
		LogParsedResponse: snap.ProxySettings.Logging.LogParsedResponse,
		LogParsedStream:   snap.ProxySettings.Logging.LogParsedStream,
		QueueTimeout:      30 * time.Second,
	}

	srv := httpapi.NewServer(flagAddr, engine)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.L().Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// routerLogger adapts the process logger to router.Logger.
type routerLogger struct{}

func (routerLogger) RetryAttempt(backend string, attempt int, reason string, delay time.Duration) {
	logging.L().Info("retry", zap.String("backend", backend), zap.Int("attempt", attempt), zap.String("reason", reason), zap.Duration("delay", delay))
}

func (routerLogger) FallbackToNext(from, to string, reason string) {
	logging.L().Info("fallback", zap.String("from", from), zap.String("to", to), zap.String("reason", reason))
}
