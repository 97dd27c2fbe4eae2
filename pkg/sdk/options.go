package rowsearch

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	engineBleve = "bleve"
	engineRedis = "redis"

	storageMemory = "memory"
	storageSQLite = "sqlite"

	defaultPrefix = "rowsearch:"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	engine    string // "bleve" or "redis"
	blevePath string
	addrs     []string
	password  string

	storage string // "memory" or "sqlite"
	dsn     string

	indexName        string
	batchSize        int
	maxParallelReads int

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		engine:  engineBleve,
		storage: storageMemory,
	}
}

// WithBleve stores the index with the embedded Bleve engine.
// An empty path keeps the index in memory (default).
func WithBleve(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine = engineBleve
		c.blevePath = path
	})
}

// WithRedis stores the index in a Redis instance with the search module.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine = engineRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMemoryStorage keeps rows in process memory (default).
func WithMemoryStorage() Option {
	return optionFunc(func(c *clientConfig) {
		c.storage = storageMemory
		c.dsn = ""
	})
}

// WithSQLite keeps rows in the SQLite database at dsn.
func WithSQLite(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.storage = storageSQLite
		c.dsn = dsn
	})
}

// WithIndexName overrides the index name. Defaults to "<table>_idx".
func WithIndexName(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexName = name
	})
}

// WithBatchSize bounds how many rows are read from storage per call,
// both when syncing mutations and when materializing search hits.
func WithBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = n
	})
}

// WithMaxParallelReads bounds concurrent storage reads during a search.
func WithMaxParallelReads(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxParallelReads = n
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
