// Package app contains the application setup for the cart service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/gomarketplace/internal/config"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/abgdnv/gomarketplace/internal/store"
	"github.com/abgdnv/gomarketplace/internal/transport/rest"
	"github.com/abgdnv/gomarketplace/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/gomarketplace/pkg/config"
	"github.com/abgdnv/gomarketplace/pkg/server"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type Dependencies struct {
	Cart   *service.Service
	Logger *slog.Logger
	// Metrics serves the Prometheus registry; nil disables the endpoint.
	Metrics     http.Handler
	MetricsPath string
}

// Storage is the opened cart storage together with the resource backing it.
type Storage struct {
	KV store.KVStore
	db *sql.DB
}

// Close releases the database behind the storage, if any.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenStorage opens the configured storage driver, applies the schema migrations
// and wraps the result in the storage circuit breaker.
func OpenStorage(ctx context.Context, storageCfg pkgconfig.StorageConfig, cbCfg pkgconfig.CircuitBreakerConfig, logger *slog.Logger) (*Storage, error) {
	var (
		kv store.KVStore
		db *sql.DB
	)
	switch storageCfg.Driver {
	case pkgconfig.StorageDriverSQLite:
		var err error
		db, err = bootstrap.NewSQLiteDB(ctx, storageCfg.Path, storageCfg.Timeout)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		kv = store.NewSQLiteStore(db)
	case pkgconfig.StorageDriverMemory:
		kv = store.NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", storageCfg.Driver)
	}
	logger.Info("Cart storage opened", "driver", storageCfg.Driver, "key", storageCfg.StorageKey())
	return &Storage{KV: store.NewBreakerStore(kv, cbCfg, logger), db: db}, nil
}

// SetupDependencies creates the cart service on top of kv and restores the saved cart.
func SetupDependencies(ctx context.Context, kv store.KVStore, cfg *config.Config, logger *slog.Logger) *Dependencies {
	cart := service.NewService(kv, cfg.Storage.StorageKey(), cfg.Storage.Timeout, logger)
	cart.Load(ctx)
	return &Dependencies{
		Cart:   cart,
		Logger: logger,
	}
}

// SetupHttpHandler initializes the routes and middleware of the cart API.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return otelhttp.NewHandler(mux, "cart-http")
}

// wireRoutes sets up the HTTP routes for the cart service.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	cartHandler := rest.NewHandler(deps.Logger)
	cartHandler.RegisterRoutes(mux, deps.Cart)
	if deps.Metrics != nil {
		mux.Method(http.MethodGet, deps.MetricsPath, deps.Metrics)
	}
}

// SetupHttpServer creates and configures an HTTP server for the cart service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}

// SetupGrpcServer initializes the gRPC server exposing the health service.
func SetupGrpcServer(deps *Dependencies, healthServer *health.Server, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, reflectionEnabled, server.WithHealth(healthServer))
}
