package indexing

import (
	"context"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain/row"
)

// Index maintains row documents in the search engine.
type Index interface {
	Upsert(ctx context.Context, r row.Row) error
	DeleteRow(ctx context.Context, pk row.PartitionKey, ck row.ClusteringKey) error
	DeletePartition(ctx context.Context, pk row.PartitionKey) error
	DeleteRange(ctx context.Context, pk row.PartitionKey, t row.RangeTombstone) (int, error)
}

// Rows reads logical rows back from storage.
type Rows interface {
	ReadRows(ctx context.Context, pk row.PartitionKey, cks []row.ClusteringKey, now time.Time) ([]row.Row, error)
	ReadPartition(ctx context.Context, pk row.PartitionKey, now time.Time) ([]row.Row, error)
	Partitions(ctx context.Context) ([]row.PartitionKey, error)
}
