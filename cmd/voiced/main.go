package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/zentalk-voice/pkg/api"
	"github.com/ZentaChain/zentalk-voice/pkg/config"
	"github.com/ZentaChain/zentalk-voice/pkg/metrics"
	"github.com/ZentaChain/zentalk-voice/pkg/network"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
)

const defaultConfigPath = "./voiced.toml"

var (
	configPath = flag.String("c", defaultConfigPath, "Path to config file")
	genConfig  = flag.Bool("genconf", false, "Write a default config file and exit")
	listenAddr = flag.String("listen", "", "Override server listen address")
	logLevel   = flag.String("log-level", "", "Override log level")
)

func main() {
	flag.Parse()

	if *genConfig {
		if err := config.Default().WriteFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote default config to %s\n", *configPath)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// loadConfig reads path, falling back to defaults when the default path
// does not exist
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return cfg, err
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := storage.OpenWithCleanup(cfg.Database.Path, cfg.Database.BanCleanupInterval.Std(), logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSuperUser(cfg.Server.SuperUserPassword); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts, err := cfg.ServerOptions(store, m, logger)
	if err != nil {
		return err
	}
	srv, err := network.NewServer(opts)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.API.Enabled {
		httpAPI := api.NewServer(srv, reg, cfg.APIConfig(), logger)
		g.Go(func() error { return httpAPI.Run(gctx) })
	}
	return g.Wait()
}
