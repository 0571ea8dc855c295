package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sajjad-MoBe/walstore/internal/api"
	"github.com/sajjad-MoBe/walstore/internal/config"
	"github.com/sajjad-MoBe/walstore/internal/grpcPack"
	"github.com/sajjad-MoBe/walstore/internal/shared"
	"github.com/sajjad-MoBe/walstore/internal/store"
	"github.com/sajjad-MoBe/walstore/internal/tracing"
	"github.com/sajjad-MoBe/walstore/internal/wal"
)

var (
	httpAddress string
	grpcAddress string
	walPath     string
	logLevel    string
)

var startNodeCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the walstore node",
	RunE:  runNode,
}

func init() {
	startNodeCmd.Flags().StringVarP(&httpAddress, "address", "a", "", "Address for the HTTP server to listen on")
	startNodeCmd.Flags().StringVar(&grpcAddress, "grpc-address", "", "Address for the gRPC server to listen on")
	startNodeCmd.Flags().StringVar(&walPath, "wal", "", "Path of the write-ahead log file")
	startNodeCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the config file and applies the flags that were set
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Node.HTTPAddress = httpAddress
	}
	if flags.Changed("grpc-address") {
		cfg.Node.GRPCAddress = grpcAddress
	}
	if flags.Changed("wal") {
		cfg.WAL.Path = walPath
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LoggerConfig) *shared.Logger {
	level := shared.ParseLogLevel(cfg.Level)
	if cfg.JSON {
		return shared.NewJSONLogger(level)
	}
	return shared.NewLogger(level)
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logger)
	shared.DefaultLogger = logger
	defer logger.Sync()

	tracer, err := tracing.NewTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	tracer.Install()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(ctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	log, err := wal.Open(cfg.WAL.Path,
		wal.WithLogger(logger),
		wal.WithMetrics(wal.NewMetrics(reg)),
		wal.WithChecksums(cfg.WAL.Checksums),
	)
	if err != nil {
		return err
	}
	defer log.Close()

	kv := store.New(log, store.WithLogger(logger), store.WithTracer(tracer.Tracer()))
	stats, err := kv.Recover()
	if err != nil {
		return fmt.Errorf("failed to recover store: %w", err)
	}
	if stats.Corrupted > 0 || stats.Errors > 0 {
		logger.Warn("recovery skipped %d corrupted records and %d unappliable records", stats.Corrupted, stats.Errors)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var httpServer *api.Server
	if cfg.Node.HTTPAddress != "" {
		httpServer = api.NewServer(kv, log,
			api.WithLogger(logger),
			api.WithRegistry(reg, reg),
			api.WithTracer(tracer),
		)
		go func() {
			if err := httpServer.Start(cfg.Node.HTTPAddress); err != nil {
				logger.Error("HTTP server error: %v", err)
				cancel()
			}
		}()
	}

	var grpcServer *grpcPack.Server
	if cfg.Node.GRPCAddress != "" {
		grpcServer = grpcPack.NewServer(kv, logger)
		go func() {
			if err := grpcServer.Start(cfg.Node.GRPCAddress); err != nil {
				logger.Error("gRPC server error: %v", err)
				cancel()
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal %v, initiating shutdown", sig)
	case <-ctx.Done():
		logger.Warn("shutting down due to server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during HTTP shutdown: %v", err)
		}
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	return nil
}
