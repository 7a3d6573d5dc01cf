package e2e

import (
	"context"
	"database/sql"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/asakaida/placement/internal/handlers"
	"github.com/asakaida/placement/internal/infrastructure/config"
	"github.com/asakaida/placement/internal/infrastructure/database"
	"github.com/asakaida/placement/internal/infrastructure/metrics"
	"github.com/asakaida/placement/internal/policies"
	"github.com/asakaida/placement/internal/repositories/postgres"
	"github.com/asakaida/placement/internal/services/policy"
)

const bufSize = 1024 * 1024

// E2ETestServer is a placement policy server on an in-memory listener
// backed by the test database
type E2ETestServer struct {
	Server    *grpc.Server
	Client    *handlers.PolicyServiceClient
	Health    healthpb.HealthClient
	Enforcer  *policy.Enforcer
	Overrides *policy.OverrideManager
	Collector *metrics.Collector
	Conn      *grpc.ClientConn
	DB        *sql.DB
	Listener  *bufconn.Listener
}

// E2EOptions tune the server under test
type E2EOptions struct {
	PolicyFile   string
	EnforceScope bool
}

// SetupE2ETest starts a server wired the way cmd/placement-api wires it.
// The test is skipped when the database is not reachable.
func SetupE2ETest(t *testing.T, opts E2EOptions) *E2ETestServer {
	t.Helper()

	db := openTestDB(t)
	cleanupDatabase(t, db)

	e := &E2ETestServer{DB: db}
	e.start(t, opts)
	return e
}

// Restart stops the server and starts a fresh one against the same
// database, as a process restart would
func (e *E2ETestServer) Restart(t *testing.T, opts E2EOptions) {
	t.Helper()

	e.stop()
	e.start(t, opts)
}

func (e *E2ETestServer) start(t *testing.T, opts E2EOptions) {
	t.Helper()

	logger := zap.NewNop()
	collector := metrics.NewCollector()

	enforcer, err := policy.NewEnforcer(policy.Options{
		EnforceScope: opts.EnforceScope,
		Logger:       logger,
		Recorder:     metrics.NewDecisionRecorder(collector, nil),
	})
	if err != nil {
		t.Fatalf("failed to create enforcer: %v", err)
	}
	if err := enforcer.RegisterDefaults(policies.ListRules()); err != nil {
		t.Fatalf("failed to register defaults: %v", err)
	}

	repo := postgres.NewPostgresRuleOverrideRepository(e.DB)
	overrides := policy.NewOverrideManager(enforcer, repo, opts.PolicyFile, logger)
	if err := overrides.Reload(context.Background()); err != nil {
		t.Fatalf("failed to load overrides: %v", err)
	}

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(collector, nil)))
	handlers.RegisterPolicyServiceServer(server, handlers.NewPolicyHandler(enforcer, overrides, logger))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handlers.PolicyServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	conn, err := grpc.NewClient(
		"passthrough://bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		server.Stop()
		t.Fatalf("failed to create client connection: %v", err)
	}

	e.Server = server
	e.Listener = listener
	e.Conn = conn
	e.Client = handlers.NewPolicyServiceClient(conn)
	e.Health = healthpb.NewHealthClient(conn)
	e.Enforcer = enforcer
	e.Overrides = overrides
	e.Collector = collector
}

func (e *E2ETestServer) stop() {
	if e.Conn != nil {
		e.Conn.Close()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
	if e.Listener != nil {
		e.Listener.Close()
	}
}

// Teardown cleans up the E2E test environment
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	e.stop()
	if e.DB != nil {
		cleanupDatabase(t, e.DB)
		e.DB.Close()
	}
}

// WaitForServer waits until the health service reports SERVING
func (e *E2ETestServer) WaitForServer(t *testing.T, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := e.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: handlers.PolicyServiceName})
		if err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("timeout waiting for server to be ready")
		case <-ticker.C:
		}
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("failed to init config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Skipf("skipping e2e test: %v", err)
	}
	if !cfg.Database.Enabled {
		t.Skip("skipping e2e test: DB_ENABLED=false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(ctx, &cfg.Database, zap.NewNop())
	if err != nil {
		t.Skipf("skipping e2e test: %v", err)
	}

	root, err := config.ProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}
	if err := pg.RunMigrations(filepath.Join(root, database.MigrationsPath)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pg.DB
}

// cleanupDatabase removes all data from test database
func cleanupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "DELETE FROM policy_overrides"); err != nil {
		t.Logf("warning: failed to clean up table policy_overrides: %v", err)
	}
}
