package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
)

// Index runs compiled searches and decodes hits into row keys.
type Index interface {
	Search(ctx context.Context, req *db.SearchRequest) ([]result.Hit, error)
}

// Rows reads logical rows back from storage.
type Rows interface {
	ReadRows(ctx context.Context, pk row.PartitionKey, cks []row.ClusteringKey, now time.Time) ([]row.Row, error)
}
