package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/config"
	"github.com/kailas-cloud/rowsearch/internal/db"
	dbBleve "github.com/kailas-cloud/rowsearch/internal/db/bleve"
	dbRedis "github.com/kailas-cloud/rowsearch/internal/db/redis"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	logpkg "github.com/kailas-cloud/rowsearch/internal/logger"
	"github.com/kailas-cloud/rowsearch/internal/metrics"
	cellsrepo "github.com/kailas-cloud/rowsearch/internal/repository/cells"
	documentrepo "github.com/kailas-cloud/rowsearch/internal/repository/document"
	"github.com/kailas-cloud/rowsearch/internal/storage/memory"
	"github.com/kailas-cloud/rowsearch/internal/storage/sqlite"
	chiTransport "github.com/kailas-cloud/rowsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/rowsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/rowsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/rowsearch/internal/usecase/search"
	"github.com/kailas-cloud/rowsearch/internal/version"
)

// rowStore is what the composition root needs from a storage backend.
type rowStore interface {
	Apply(ctx context.Context, m *row.Mutation) error
	ReadCells(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error)
	Partitions(ctx context.Context) ([]row.PartitionKey, error)
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting rowsearch server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_engine", cfg.Index.Engine),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("table", cfg.Table.Name),
	)

	table, sch, err := buildSchema(cfg)
	if err != nil {
		logger.Fatal("Invalid table schema", zap.Error(err))
	}

	ctx := context.Background()
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open index engine", zap.Error(err))
	}
	defer func() { _ = engine.Close() }()

	store, err := openStorage(cfg, table)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	// Register metrics explicitly (no init())
	metrics.Register()

	mapper := documentrepo.NewMapper(sch)
	docRepo := documentrepo.New(engine, mapper)
	if err := docRepo.EnsureIndex(ctx, cfg.Index.Name, cfg.Index.Prefix); err != nil {
		logger.Fatal("Failed to create index", zap.Error(err))
	}
	logger.Info("Index ready", zap.String("index", cfg.Index.Name))
	rowRepo := cellsrepo.New(store, mapper)

	indexingSvc := indexinguc.New(docRepo, rowRepo, logger).WithBatchSize(cfg.Sync.BatchSize)
	materializer := searchuc.NewMaterializer(rowRepo, logger).
		WithLimits(cfg.Sync.BatchSize, cfg.Sync.MaxParallelReads)
	searchSvc := searchuc.New(sch, docRepo, materializer, logger)
	healthSvc := healthuc.New(engine, store)

	server := chiTransport.NewServer(rowRepo, indexingSvc, searchSvc, healthSvc, logger)
	handler := chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildSchema turns the configured table and column mappings into domain values
// and checks that every mapping can index its column.
func buildSchema(cfg config.Config) (*cql.Table, *schema.Schema, error) {
	table, err := cql.NewTable(cfg.Table.Name, cfg.Table.Columns)
	if err != nil {
		return nil, nil, fmt.Errorf("table: %w", err)
	}

	decl := make(map[string]schema.Declaration, len(cfg.Schema.Columns))
	for col, c := range cfg.Schema.Columns {
		decl[col] = schema.Declaration{
			Kind: schema.Kind(c.Type),
			Options: schema.Options{
				Analyzer:      c.Analyzer,
				CaseSensitive: c.CaseSensitive,
				Pattern:       c.Pattern,
				Digits:        c.Digits,
				IntegerDigits: c.IntegerDigits,
				DecimalDigits: c.DecimalDigits,
			},
		}
	}
	sch, err := schema.Build(cfg.Schema.DefaultAnalyzer, decl)
	if err != nil {
		return nil, nil, err
	}
	if err := sch.Validate(table); err != nil {
		return nil, nil, err
	}
	return table, sch, nil
}

func openEngine(ctx context.Context, cfg config.Config) (db.Engine, error) {
	switch cfg.Index.Engine {
	case config.EngineRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:           cfg.Index.Redis.Addrs,
			Username:        cfg.Index.Redis.Username,
			Password:        cfg.Index.Redis.Password,
			DB:              cfg.Index.Redis.DB,
			DeleteBatchSize: cfg.Index.DeleteBatchSize,
		})
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(cfg.Index.Redis.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return dbBleve.NewStore(dbBleve.Config{
			Path:            cfg.Index.Bleve.Path,
			DeleteBatchSize: cfg.Index.DeleteBatchSize,
		}), nil
	}
}

func openStorage(cfg config.Config, table *cql.Table) (rowStore, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		return memory.New(table), nil
	}
	return sqlite.New(cfg.Storage.DSN, table)
}
