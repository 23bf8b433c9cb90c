package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"poolhost/cmd/internal/secret"
	"poolhost/config"
	"poolhost/observability/logging"
	telemetry "poolhost/observability/otel"
)

const adminSecretEnv = "POOLHOST_ADMIN_SECRET"

func main() {
	var cfgPath, secretFile string
	flag.StringVar(&cfgPath, "config", "./poolhost.toml", "path to poolhostd config (.toml or .yaml)")
	flag.StringVar(&secretFile, "admin-secret-file", "", "file holding the admin token signing secret")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := cfg.Log.Environment
	if value := strings.TrimSpace(os.Getenv("POOLHOST_ENV")); value != "" {
		env = value
	}
	logger := logging.SetupWithOptions("poolhostd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if _, ok := os.LookupEnv(adminSecretEnv); ok || secretFile != "" {
		value, err := secret.NewSource(adminSecretEnv, secretFile).Get()
		if err != nil {
			log.Fatalf("resolve admin secret: %v", err)
		}
		cfg.Admin.AuthSecret = value
		if err := cfg.Validate(); err != nil {
			log.Fatalf("validate config: %v", err)
		}
	}

	if cfg.Telemetry.Endpoint != "" {
		logger.Info("telemetry export enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			slog.Bool("metrics", cfg.Telemetry.Metrics),
			slog.Bool("traces", cfg.Telemetry.Traces),
			logging.MaskField("headers", cfg.Telemetry.Headers))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), "poolhostd", env, cfg.Telemetry)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := newNode(cfg, logger)
	if err != nil {
		log.Fatalf("start node: %v", err)
	}
	defer n.close()

	logger.Info("storage opened",
		slog.String("backend", cfg.Storage.Backend),
		slog.String("path", cfg.Storage.Path))
	if err := n.bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	if err := n.run(ctx); err != nil {
		log.Printf("poolhostd stopped: %v", err)
	}
}
