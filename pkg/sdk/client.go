package rowsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/db"
	dbBleve "github.com/kailas-cloud/rowsearch/internal/db/bleve"
	dbRedis "github.com/kailas-cloud/rowsearch/internal/db/redis"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
	cellsrepo "github.com/kailas-cloud/rowsearch/internal/repository/cells"
	documentrepo "github.com/kailas-cloud/rowsearch/internal/repository/document"
	"github.com/kailas-cloud/rowsearch/internal/storage/memory"
	"github.com/kailas-cloud/rowsearch/internal/storage/sqlite"
	healthuc "github.com/kailas-cloud/rowsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/rowsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/rowsearch/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces for substitution in tests.
type rowWriter interface {
	Apply(ctx context.Context, m *row.Mutation) error
}

type indexingUseCase interface {
	Index(ctx context.Context, m *row.Mutation) (indexinguc.Outcome, error)
	Delete(ctx context.Context, pk row.PartitionKey) error
	Rebuild(ctx context.Context) (indexinguc.RebuildStats, error)
}

type searchUseCase interface {
	Search(ctx context.Context, req *request.Request, now time.Time) ([]result.ScoredRow, error)
}

type rowStore interface {
	rowWriter
	ReadCells(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error)
	Partitions(ctx context.Context) ([]row.PartitionKey, error)
	Ping(ctx context.Context) error
	Close() error
}

// Client is the rowsearch SDK entry point.
type Client struct {
	engine      db.Engine
	store       rowStore
	rows        rowWriter
	indexingSvc indexingUseCase
	searchSvc   searchUseCase
	healthSvc   healthUseCase
	obs         *observer
	now         func() time.Time
}

// New opens storage and the index engine for table and creates the index.
// The provided context is used for the readiness check and index creation.
func New(ctx context.Context, table Table, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	t, sch, err := buildSchema(table)
	if err != nil {
		return nil, fmt.Errorf("rowsearch: %w", err)
	}
	if cfg.indexName == "" {
		cfg.indexName = table.Name + "_idx"
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	engine, err := createEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := createStorage(cfg, t)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	c, err := wireClient(ctx, engine, store, sch, cfg, obs)
	if err != nil {
		_ = store.Close()
		_ = engine.Close()
		return nil, err
	}
	return c, nil
}

func buildSchema(table Table) (*cql.Table, *schema.Schema, error) {
	t, err := cql.NewTable(table.Name, table.Columns)
	if err != nil {
		return nil, nil, fmt.Errorf("table: %w", err)
	}
	decl := make(map[string]schema.Declaration, len(table.Mappings))
	for col, m := range table.Mappings {
		decl[col] = m.declaration()
	}
	sch, err := schema.Build(table.DefaultAnalyzer, decl)
	if err != nil {
		return nil, nil, err
	}
	if err := sch.Validate(t); err != nil {
		return nil, nil, err
	}
	return t, sch, nil
}

func createEngine(ctx context.Context, cfg *clientConfig) (db.Engine, error) {
	switch cfg.engine {
	case engineBleve:
		return dbBleve.NewStore(dbBleve.Config{Path: cfg.blevePath}), nil
	case engineRedis:
		if len(cfg.addrs) == 0 {
			return nil, errors.New("rowsearch: redis address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("rowsearch: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("rowsearch: redis not ready: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("rowsearch: unknown engine %q", cfg.engine)
	}
}

func createStorage(cfg *clientConfig, t *cql.Table) (rowStore, error) {
	switch cfg.storage {
	case storageMemory:
		return memory.New(t), nil
	case storageSQLite:
		s, err := sqlite.New(cfg.dsn, t)
		if err != nil {
			return nil, fmt.Errorf("rowsearch: open sqlite: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("rowsearch: unknown storage %q", cfg.storage)
	}
}

func wireClient(
	ctx context.Context, engine db.Engine, store rowStore, sch *schema.Schema, cfg *clientConfig, obs *observer,
) (*Client, error) {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mapper := documentrepo.NewMapper(sch)
	docRepo := documentrepo.New(engine, mapper)
	if err := docRepo.EnsureIndex(ctx, cfg.indexName, defaultPrefix); err != nil {
		return nil, fmt.Errorf("rowsearch: %w", err)
	}
	rowRepo := cellsrepo.New(store, mapper)

	indexingSvc := indexinguc.New(docRepo, rowRepo, logger).WithBatchSize(cfg.batchSize)
	materializer := searchuc.NewMaterializer(rowRepo, logger).
		WithLimits(cfg.batchSize, cfg.maxParallelReads)

	return &Client{
		engine:      engine,
		store:       store,
		rows:        rowRepo,
		indexingSvc: indexingSvc,
		searchSvc:   searchuc.New(sch, docRepo, materializer, logger),
		healthSvc:   healthuc.New(engine, store),
		obs:         obs,
		now:         time.Now,
	}, nil
}

// Close releases storage and the index engine.
func (c *Client) Close() error {
	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if c.engine != nil {
		errs = append(errs, c.engine.Close())
	}
	return errors.Join(errs...)
}

// Ping checks index engine connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.engine.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Apply writes a mutation to storage and syncs the touched rows into the index.
// A mutation that reached storage but failed to index returns its outcome and
// an error; calling Rebuild repairs the index.
func (c *Client) Apply(ctx context.Context, m Mutation) (out Outcome, err error) {
	start := time.Now()
	defer func() { c.obs.observe("apply", start, err, c.obs.applied(out)...) }()

	dm := mutationToDomain(m, c.now())
	if err = dm.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidMutation, err)
	}
	if err = c.rows.Apply(ctx, dm); err != nil {
		return Outcome{}, err
	}
	res, err := c.indexingSvc.Index(ctx, dm)
	return outcomeFromDomain(&res), err
}

// DeletePartition removes a partition's documents from the index.
// Storage is left untouched.
func (c *Client) DeletePartition(ctx context.Context, partitionKey []byte) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete_partition", start, err) }()

	return c.indexingSvc.Delete(ctx, row.PartitionKey(partitionKey))
}

// Rebuild re-indexes every partition found in storage.
func (c *Client) Rebuild(ctx context.Context) (stats RebuildStats, err error) {
	start := time.Now()
	defer func() { c.obs.observe("rebuild", start, err, c.obs.rebuilt(stats)...) }()

	s, err := c.indexingSvc.Rebuild(ctx)
	return RebuildStats{Partitions: s.Partitions, Rows: s.Rows, Failed: s.Failed}, err
}
