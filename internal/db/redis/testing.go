package redis

import (
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
// A non-nil def is adopted as if CreateIndex had run.
func NewStoreForTest(c rueidis.Client, def *db.IndexDefinition) *Store {
	s := newStore(c, 0)
	s.def = def
	return s
}
