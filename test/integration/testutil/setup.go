//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gridshare/platform/internal/app"
	"github.com/gridshare/platform/internal/infra"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const TestCallbackSecret = "whsec_test_integration_secret"

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server *httptest.Server
	Region *FakeRegion
	Pool   *pgxpool.Pool
	Engine *app.Engine
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		cfg, err := infra.LoadConfig()
		if err != nil {
			poolErr = err
			return
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sharedPool, poolErr = infra.NewPostgresPool(ctx, cfg)
	})

	if poolErr != nil {
		t.Skipf("postgres unavailable: %v", poolErr)
	}
	return sharedPool
}

// FakeRegion is a permission administrator that accepts every request and
// reports readings up to ReadingsUntil.
type FakeRegion struct {
	*httptest.Server
	Sent          atomic.Int32
	Terminated    atomic.Int32
	ReadingsUntil time.Time
}

func newFakeRegion() *FakeRegion {
	f := &FakeRegion{ReadingsUntil: time.Now().UTC().Add(48 * time.Hour)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/permission-requests":
			f.Sent.Add(1)
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/terminate"):
			f.Terminated.Add(1)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/readings"):
			end := f.ReadingsUntil.Format(time.RFC3339)
			fmt.Fprintf(w, `{"readings":[{"start":%q,"end":%q,"value":1}]}`, end, end)
		default:
			http.NotFound(w, r)
		}
	}))
	return f
}

// NewTestEnv creates a test environment with an httptest.Server backed by
// the real router, a Postgres event log and a fake region.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	region := newFakeRegion()
	root := findProjectRoot()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &infra.Config{
		StoreBackend:      "postgres",
		CredentialTTL:     time.Hour,
		SweepInterval:     time.Hour,
		SweepStaleAfter:   time.Hour,
		AcceptedDedupeTTL: time.Hour,
		RegionID:          "at-eda",
		RegionBaseURL:     region.URL,
		RegionRPS:         100,
		RegionBurst:       10,
		RegionTimeout:     5 * time.Second,
		BreakerFails:      5,
		BreakerTimeout:    time.Minute,
		FetchTimeout:      5 * time.Second,
		RegionProfile:     filepath.Join(root, "config", "region.yaml"),
		DataNeedsFile:     filepath.Join(root, "config", "data-needs.yaml"),
		CallbackSecret:    TestCallbackSecret,
		CallbackTolerance: time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)
	engine, err := app.NewEngine(ctx, app.EngineDeps{Config: cfg, Pool: pool, Metrics: metrics, Logger: logger})
	if err != nil {
		cancel()
		region.Close()
		t.Fatalf("assemble engine: %v", err)
	}

	server := httptest.NewServer(app.NewRouter(engine, reg, metrics, logger))
	env := &TestEnv{
		Server: server,
		Region: region,
		Pool:   pool,
		Engine: engine,
		t:      t,
	}

	t.Cleanup(func() {
		server.Close()
		cancel()
		engine.Poller.Wait()
		region.Close()
	})
	return env
}
