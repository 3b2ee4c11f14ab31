package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"dinechain/config"
	"dinechain/core"
	"dinechain/core/events"
	"dinechain/core/genesis"
	"dinechain/indexer"
	"dinechain/observability"
	"dinechain/observability/logging"
	telemetry "dinechain/observability/otel"
	"dinechain/rpc"
	"dinechain/storage"
)

const (
	serviceName    = "dined"
	genesisPathEnv = "DINE_GENESIS"
)

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides DINE_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("dined exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string) (err error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logger.Info("configuration loaded",
		slog.String("config", configFile),
		slog.String("rpc_address", cfg.RPCAddress),
		logging.Mask("rpc_token", cfg.Auth.Token))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Every resource below is released by a defer registered right after it
	// is acquired, so early returns unwind in reverse order.
	withDeadline := func(fn func(context.Context) error) error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		return fn(shutdownCtx)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownErr := withDeadline(shutdownTelemetry); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("telemetry shutdown: %w", shutdownErr))
		}
	}()

	genesisPath, err := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err != nil {
		return err
	}
	var spec *genesis.Spec
	if genesisPath != "" {
		spec, err = genesis.LoadSpec(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, spec, logger)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	node.SetPauses(cfg.Pauses.View())
	node.SetQuota(cfg.Quota.Native())

	fanout := events.Fanout{observability.MetricsEmitter{}, logging.EventLogger(logger)}
	var index *indexer.Indexer
	if cfg.Indexer.Enabled {
		index, err = indexer.Open(cfg.Indexer.DSN, indexer.Options{QueueDepth: cfg.Indexer.QueueDepth, Logger: logger})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := index.Close(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("close indexer: %w", closeErr))
			}
		}()
		fanout = append(fanout, index)
	}
	node.SetEmitter(fanout)

	var paymentIndex rpc.PaymentIndex
	if index != nil {
		paymentIndex = index
	}
	server, err := rpc.NewServer(node, paymentIndex, rpc.ServerConfig{
		MaxBodyBytes:      cfg.MaxBodyBytes,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		AuthToken:         cfg.Auth.Token,
		JWTSecret:         cfg.Auth.JWTSecret,
		JWTIssuer:         cfg.Auth.JWTIssuer,
		TrustedProxies:    append([]string(nil), cfg.RateLimit.TrustedProxies...),
	}, logger)
	if err != nil {
		return fmt.Errorf("create rpc server: %w", err)
	}
	if !cfg.Auth.Enabled() {
		logger.Warn("dine_sendTransaction is unauthenticated; set Auth.Token or Auth.JWTSecret")
	}

	ln, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPCAddress, err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("rpc server stopped", slog.Any("error", err))
		}
	}

	var errs []error
	if err := withDeadline(server.Shutdown); err != nil {
		errs = append(errs, fmt.Errorf("rpc shutdown: %w", err))
	}
	if index != nil {
		index.Flush()
		if dir := strings.TrimSpace(cfg.Indexer.ExportDir); dir != "" {
			path := exportPath(dir, time.Now())
			err := withDeadline(func(exportCtx context.Context) error {
				rows, err := index.ExportPayments(exportCtx, path)
				if err == nil {
					logger.Info("payments exported", slog.String("path", path), slog.Int("rows", rows))
				}
				return err
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	logger.Info("dined stopped")
	return errors.Join(errs...)
}

// resolveGenesisPath picks the genesis file from the CLI flag, then the
// environment, then the config file. An empty result is valid when the
// database already holds a genesis.
func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) (string, error) {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed, nil
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, nil
			}
		}
	}
	trimmed := strings.TrimSpace(cfgPath)
	if trimmed == "" {
		return "", nil
	}
	if _, err := os.Stat(trimmed); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat genesis %s: %w", trimmed, err)
	}
	return trimmed, nil
}

func exportPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("payments-%s.parquet", now.UTC().Format("20060102T150405Z")))
}
