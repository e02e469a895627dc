// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MadsRC/llmbridge/internal/api"
	"github.com/MadsRC/llmbridge/internal/catalog"
	"github.com/MadsRC/llmbridge/internal/credential"
	"github.com/MadsRC/llmbridge/internal/favorites"
	"github.com/MadsRC/llmbridge/internal/keystore"
	"github.com/MadsRC/llmbridge/internal/monitoring"
	"github.com/MadsRC/llmbridge/internal/openrouter"
	"github.com/MadsRC/llmbridge/internal/pipeline"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "llmbridge",
		Usage:   "Embedded bridge between IDE chat requests and the model-routing API",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Value:   "127.0.0.1:4000",
				Usage:   "Address for the bridge to listen on",
				Sources: cli.EnvVars("LLMBRIDGE_LISTEN"),
			},
			&cli.StringFlag{
				Name:     "provisioning-key",
				Usage:    "Account credential used to manage delegated credentials (never sent with completions)",
				Sources:  cli.EnvVars("LLMBRIDGE_PROVISIONING_KEY"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "upstream-base-url",
				Value:   openrouter.DefaultBaseURL,
				Usage:   "Base URL of the model-routing API",
				Sources: cli.EnvVars("LLMBRIDGE_UPSTREAM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "key-label",
				Value:   credential.DefaultLabel,
				Usage:   "Label identifying this bridge's delegated credential upstream",
				Sources: cli.EnvVars("LLMBRIDGE_KEY_LABEL"),
			},
			&cli.IntFlag{
				Name:    "default-max-tokens",
				Usage:   "max_tokens injected when a request supplies none (0 disables injection)",
				Sources: cli.EnvVars("LLMBRIDGE_DEFAULT_MAX_TOKENS"),
			},
			&cli.StringSliceFlag{
				Name:    "favorite-models",
				Usage:   "Ordered model ids suggested when a request is rejected for an unsupported modality",
				Sources: cli.EnvVars("LLMBRIDGE_FAVORITE_MODELS"),
			},
			&cli.DurationFlag{
				Name:    "catalog-ttl",
				Value:   catalog.DefaultTTL,
				Usage:   "How long a model catalog snapshot is served before refresh",
				Sources: cli.EnvVars("LLMBRIDGE_CATALOG_TTL"),
			},
			&cli.DurationFlag{
				Name:    "list-ttl",
				Value:   credential.DefaultListTTL,
				Usage:   "How long a remote credential listing is served from cache",
				Sources: cli.EnvVars("LLMBRIDGE_LIST_TTL"),
			},
			&cli.StringFlag{
				Name:    "store-path",
				Usage:   "Encrypted credential file used when the OS keyring is unavailable",
				Sources: cli.EnvVars("LLMBRIDGE_STORE_PATH"),
			},
			&cli.StringSliceFlag{
				Name:    "allowed-origins",
				Usage:   "CORS origins allowed to call the bridge (IDE webviews)",
				Sources: cli.EnvVars("LLMBRIDGE_ALLOWED_ORIGINS"),
			},
			&cli.StringFlag{
				Name:    "attribution-referer",
				Usage:   "HTTP-Referer attribution header sent upstream",
				Sources: cli.EnvVars("LLMBRIDGE_ATTRIBUTION_REFERER"),
			},
			&cli.StringFlag{
				Name:    "otlp-endpoint",
				Usage:   "OTLP gRPC endpoint for metrics export (empty disables metrics)",
				Sources: cli.EnvVars("LLMBRIDGE_OTLP_ENDPOINT"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("LLMBRIDGE_DEBUG"),
			},
		},
		Action: runBridge,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Failed to run command", "error", err)
		os.Exit(1)
	}
}

func runBridge(ctx context.Context, c *cli.Command) error {
	// Setup logger
	logLevel := slog.LevelInfo
	if c.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Optional metrics export
	var metrics *monitoring.BridgeMetrics
	if endpoint := c.String("otlp-endpoint"); endpoint != "" {
		monitor, err := monitoring.NewManager(logger, monitoring.Config{
			ServiceName:    "llmbridge",
			ServiceVersion: c.Version,
			OTLPEndpoint:   endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to create monitoring manager: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := monitor.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shutdown monitoring", "error", err)
			}
		}()
		metrics = monitor.GetBridgeMetrics()
	}

	// Upstream client
	upstream, err := openrouter.New(
		openrouter.WithClientLogger(logger),
		openrouter.WithClientBaseURL(c.String("upstream-base-url")),
		openrouter.WithClientProvisioningKey(c.String("provisioning-key")),
		openrouter.WithClientAttribution(c.String("attribution-referer"), "llmbridge"),
	)
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	// Model capability index
	index, err := catalog.NewIndex(
		catalog.WithIndexLogger(logger),
		catalog.WithIndexLister(upstream),
		catalog.WithIndexTTL(c.Duration("catalog-ttl")),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog index: %w", err)
	}

	// Warm the catalog; a cold index degrades to optimistic validation
	if err := index.Refresh(ctx); err != nil {
		logger.Warn("Initial catalog refresh failed, validation will be optimistic until retry", "error", err)
		metrics.RecordCatalogRefresh(ctx, "failure")
	} else {
		metrics.RecordCatalogRefresh(ctx, "success")
	}

	// Credential store and lifecycle manager
	storePath := c.String("store-path")
	if storePath == "" {
		storePath = defaultStorePath()
	}
	store := keystore.Open(logger, "llmbridge", storePath)

	manager, err := credential.NewManager(
		credential.WithManagerLogger(logger),
		credential.WithManagerStore(store),
		credential.WithManagerKeys(upstream),
		credential.WithManagerLabel(c.String("key-label")),
		credential.WithManagerListTTL(c.Duration("list-ttl")),
		credential.WithManagerMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create credential manager: %w", err)
	}

	// Provision eagerly so the first completion does not pay for it
	if err := manager.EnsureExists(ctx); err != nil {
		logger.Warn("Startup credential check failed, will retry on first request", "error", err)
	}

	// Request pipeline
	validator := pipeline.NewValidator(
		pipeline.WithValidatorLogger(logger),
		pipeline.WithValidatorLookup(index),
		pipeline.WithValidatorFavorites(favorites.NewProvider(c.StringSlice("favorite-models"), index)),
	)
	acceptor := pipeline.NewAcceptor(
		pipeline.WithAcceptorLogger(logger),
		pipeline.WithAcceptorValidator(validator),
		pipeline.WithAcceptorTranslator(pipeline.NewTranslator(c.Int("default-max-tokens"))),
		pipeline.WithAcceptorMetrics(metrics),
	)

	server, err := api.NewServer(
		api.WithServerLogger(logger),
		api.WithServerAddr(c.String("listen")),
		api.WithServerAcceptor(acceptor),
		api.WithServerUpstream(upstream),
		api.WithServerSecrets(manager),
		api.WithServerCatalog(index),
		api.WithServerMetrics(metrics),
		api.WithServerAllowedOrigins(c.StringSlice("allowed-origins")),
	)
	if err != nil {
		return fmt.Errorf("failed to create bridge server: %w", err)
	}

	serverChan := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := server.Start(ctx); err != nil {
			serverChan <- fmt.Errorf("bridge server failed: %w", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverChan:
		return err
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown bridge server gracefully", "error", err)
			return err
		}

		logger.Info("Bridge shutdown complete")
		return nil
	}
}

// defaultStorePath is the fallback credential file location used when the
// OS keyring is unavailable and no explicit path was configured.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "llmbridge", "credential.enc")
}
