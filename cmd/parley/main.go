// parley is the conversational-call worker: it accepts rooms dispatched by
// the audio pipeline host, runs one session controller per call, and exposes
// an admin surface for health, live sessions and metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"parley/internal/admin"
	"parley/internal/agent"
	"parley/internal/config"
	"parley/internal/invoker"
	"parley/internal/kb"
	"parley/internal/logging"
	"parley/internal/orchestrator"
	"parley/internal/persist"
	"parley/internal/pipeline"
	"parley/internal/session"
)

var version = "0.1.0"

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the worker CLI.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Configuration-driven conversational call worker",
		Long: `parley runs LLM-driven phone conversations: per-session tool
registries built from stored action configuration, idle/reminder/timeout
lifecycle management, assistant handoffs and transcript persistence.

Configuration comes from PARLEY_* environment variables; see
internal/config.LoadSettings for the full list.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the worker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parley %s\n", version)
		},
	})

	return rootCmd
}

func runWorker(ctx context.Context) error {
	logger := logging.NewComponentLogger("worker")

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	store, err := config.NewRedisStore(config.RedisOptions{
		Addr:     settings.RedisAddr,
		Username: settings.RedisUsername,
		Password: settings.RedisPassword,
	}, logging.NewComponentLogger("config"))
	if err != nil {
		return fmt.Errorf("connecting session config store: %w", err)
	}
	defer store.Close()

	metricsReg := prometheus.NewRegistry()
	metrics := orchestrator.MustNewMetrics(metricsReg)

	registry := session.NewRegistry()
	host := pipeline.NewClient(settings.PipelineURL, logging.NewComponentLogger("pipeline")).
		WithTimeout(settings.HTTPTimeout)

	searcher := kb.Searcher(kb.Disabled{})
	if settings.SearchURL != "" {
		searcher = kb.NewClient(settings.SearchURL, settings.SearchAPIKey, logging.NewComponentLogger("kb"))
	}

	worker := agent.NewWorker(agent.WorkerDeps{
		Store:     store,
		Pipeline:  host,
		Registry:  registry,
		Invoker:   invoker.New(settings.BackendURL, logging.NewComponentLogger("invoker")),
		Searcher:  searcher,
		Saver:     persist.NewSaver(settings.BackendURL, logging.NewComponentLogger("persist")),
		Metrics:   metrics,
		Logger:    logging.NewComponentLogger("session"),
		AgentName: settings.AgentName,
	})

	adminSrv := admin.NewServer(admin.ServerConfig{
		Host:         settings.AdminHost,
		Port:         settings.AdminPort,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}, registry, worker, metricsReg, logging.NewComponentLogger("admin"))

	errCh := make(chan error, 1)
	go func() { errCh <- adminSrv.Start() }()

	logger.Info("parley %s ready, agent pool %q", version, settings.AgentName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range registry.IDs() {
		if err := worker.CloseCall(shutdownCtx, id, "worker_shutdown"); err != nil {
			logger.Warn("closing session %s: %v", id, err)
		}
	}
	return adminSrv.Stop(shutdownCtx)
}
