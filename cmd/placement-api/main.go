package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/asakaida/placement/internal/handlers"
	"github.com/asakaida/placement/internal/infrastructure/config"
	"github.com/asakaida/placement/internal/infrastructure/database"
	"github.com/asakaida/placement/internal/infrastructure/logging"
	"github.com/asakaida/placement/internal/infrastructure/metrics"
	"github.com/asakaida/placement/internal/policies"
	"github.com/asakaida/placement/internal/repositories"
	"github.com/asakaida/placement/internal/repositories/postgres"
	"github.com/asakaida/placement/internal/services/policy"
	"github.com/asakaida/placement/internal/version"
	"github.com/asakaida/placement/pkg/cache"
	"github.com/asakaida/placement/pkg/cache/memorycache"
)

const (
	defaultEnv         = "dev"
	shutdownTimeout    = 30 * time.Second
	metricsUpdateEvery = 10 * time.Second
)

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("placement-api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting placement-api", zap.String("version", version.StringWithVCS()))

	// Check cache and metrics
	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector, nil)

	var checkCache cache.Cache
	if cfg.Cache.Enabled {
		c, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to create check cache: %w", err)
		}
		checkCache = c
		collector.SetCache(c)
		defer c.Close()
	}

	// Enforcer with the registered defaults
	enforcer, err := policy.NewEnforcer(policy.Options{
		EnforceScope: cfg.Policy.EnforceScope,
		CheckCache:   checkCache,
		CacheTTL:     time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		Logger:       logger.Named("policy"),
		Recorder:     metrics.NewDecisionRecorder(collector, exporter),
	})
	if err != nil {
		return fmt.Errorf("failed to create enforcer: %w", err)
	}
	if err := enforcer.RegisterDefaults(policies.ListRules()); err != nil {
		return fmt.Errorf("failed to register policy defaults: %w", err)
	}

	// Override store
	var (
		overrideRepo repositories.RuleOverrideRepository
		store        healthChecker
	)
	if cfg.Database.Enabled {
		pg, err := database.NewPostgres(ctx, &cfg.Database, logger.Named("database"))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()

		root, err := config.ProjectRoot()
		if err != nil {
			return err
		}
		if err := pg.RunMigrations(filepath.Join(root, database.MigrationsPath)); err != nil {
			return err
		}
		overrideRepo = postgres.NewPostgresRuleOverrideRepository(pg.DB)
		store = pg
	}

	overrides := policy.NewOverrideManager(enforcer, overrideRepo, cfg.Policy.File, logger.Named("overrides"))
	if err := overrides.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load policy overrides: %w", err)
	}

	// gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter)))
	handlers.RegisterPolicyServiceServer(grpcServer, handlers.NewPolicyHandler(enforcer, overrides, logger.Named("grpc")))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handlers.PolicyServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Prometheus metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", addr))
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	ticker := time.NewTicker(metricsUpdateEvery)
	defer ticker.Stop()

	for {
		select {
		case err := <-serverErrors:
			return err
		case <-ticker.C:
			exporter.Update()
			if store != nil {
				reportHealth(ctx, store, healthServer, logger)
			}
		case <-ctx.Done():
			logger.Info("initiating graceful shutdown")
			healthServer.Shutdown()
			shutdown(grpcServer, metricsServer, logger)
			logger.Info("shutdown complete")
			return nil
		}
	}
}

func shutdown(grpcServer *grpc.Server, metricsServer *http.Server, logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping metrics server", zap.Error(err))
	}

	// Channel to notify when graceful stop completes
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}
}
