// Package redis implements db.Engine on Redis 8+ (RediSearch over JSON documents) via rueidis.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// Compile-time check: Store implements db.Engine.
var _ db.Engine = (*Store)(nil)

// DefaultKeyPrefix prefixes document keys when the index definition names no prefix.
const DefaultKeyPrefix = "row:"

// DefaultDeleteBatchSize is the number of keys removed per round of a delete-by-query.
const DefaultDeleteBatchSize = 1000

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs           []string
	Username        string
	Password        string
	DB              int
	DeleteBatchSize int
}

// Store implements db.Engine via rueidis for Redis 8+.
type Store struct {
	client    rueidis.Client
	batchSize int

	mu  sync.RWMutex
	def *db.IndexDefinition
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newStore(client, cfg.DeleteBatchSize), nil
}

func newStore(c rueidis.Client, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultDeleteBatchSize
	}
	return &Store{client: c, batchSize: batchSize}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// definition returns the index the store serves.
func (s *Store) definition(op string) (*db.IndexDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.def == nil {
		return nil, &db.Error{Op: op, Err: db.ErrIndexNotFound}
	}
	return s.def, nil
}

func keyPrefix(def *db.IndexDefinition) string {
	if len(def.Prefixes) > 0 {
		return def.Prefixes[0]
	}
	return DefaultKeyPrefix
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

func containsIgnoreCase(s, substr string) bool {
	ls := len(s)
	lsub := len(substr)
	if lsub > ls {
		return false
	}
	for i := 0; i <= ls-lsub; i++ {
		match := true
		for j := 0; j < lsub; j++ {
			sc := s[i+j]
			tc := substr[j]
			if sc >= 'A' && sc <= 'Z' {
				sc += 'a' - 'A'
			}
			if tc >= 'A' && tc <= 'Z' {
				tc += 'a' - 'A'
			}
			if sc != tc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
