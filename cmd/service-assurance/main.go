package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/svcassure/core/internal/api"
	"github.com/svcassure/core/internal/alarms"
	"github.com/svcassure/core/internal/config"
	"github.com/svcassure/core/internal/logging"
	"github.com/svcassure/core/internal/notify"
	"github.com/svcassure/core/internal/registry"
	"github.com/svcassure/core/pkg/store"

	"github.com/google/uuid"
)

// Version information (set at build time with -ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "service-assurance",
	Short:   "Service Assurance core: probes, alarm correlation, flow analytics, SLA evaluation",
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("service-assurance %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	tail := logging.NewTailBuffer(2000)
	logger := logging.New(os.Getenv("SA_LOG_LEVEL"), tail)
	log.Logger = logger

	configPath := os.Getenv("SA_CONFIG_FILE")
	dataDir := os.Getenv("SA_DATA_DIR")
	if dataDir == "" {
		dataDir = "/var/lib/service-assurance"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tenantStores := store.NewRouter(dataDir)
	defer tenantStores.Close()

	sink := buildNotificationSink(logger)

	var core *registry.Core
	watcher, err := config.NewWatcher(configPath, func(cfg config.Config) {
		log.Info().Msg("configuration reloaded")
	}, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	defer watcher.Close()

	core = registry.New(watcher.Current(), tenantStores, sink, uuid.NewString, logger)
	core.Run(ctx)

	router := api.NewRouter(core, logger)

	addr := os.Getenv("SA_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsAddr := os.Getenv("SA_METRICS_LISTEN_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	startMetricsServer(ctx, metricsAddr)

	go func() {
		log.Info().Str("addr", addr).Msg("service assurance api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)

	for {
		select {
		case <-reloadChan:
			log.Info().Msg("received SIGHUP, configuration watcher will pick up file changes")
		case <-sigChan:
			log.Info().Msg("shutting down server...")
			goto shutdown
		}
	}

shutdown:
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	cancel()
	log.Info().Msg("server stopped")
}

// buildNotificationSink wires the SSRF-safe webhook sink from
// SA_WEBHOOK_URLS (comma-separated name=url pairs, or bare URLs). An
// empty/unset value yields a nil sink, which alarms.New replaces with
// a no-op internally.
func buildNotificationSink(logger zerolog.Logger) alarms.NotificationSink {
	raw := os.Getenv("SA_WEBHOOK_URLS")
	if raw == "" {
		return nil
	}
	var webhooks []notify.WebhookConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok {
			name, url = entry, entry
		}
		webhooks = append(webhooks, notify.WebhookConfig{Name: name, URL: url})
	}
	if len(webhooks) == 0 {
		return nil
	}
	sink := notify.NewWebhookSink(webhooks, logger)
	if cidrs := os.Getenv("SA_WEBHOOK_ALLOWED_PRIVATE_CIDRS"); cidrs != "" {
		if err := sink.UpdateAllowedPrivateCIDRs(cidrs); err != nil {
			log.Warn().Err(err).Msg("invalid SA_WEBHOOK_ALLOWED_PRIVATE_CIDRS, ignoring")
		}
	}
	return sink
}
