package memory

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, table *cql.Table) storagetest.Store {
		return New(table)
	})
}

func TestStore_WithoutTableKeepsValues(t *testing.T) {
	s := New(nil)
	m := &row.Mutation{
		PartitionKey: row.PartitionKey("p"),
		Timestamp:    time.Unix(1, 0),
		Cells:        []row.Cell{{Column: "anything", Value: 42}},
	}
	if err := s.Apply(context.Background(), m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	cells, err := s.ReadCells(context.Background(), row.PartitionKey("p"), []row.Slice{row.Whole()})
	if err != nil {
		t.Fatalf("ReadCells: %v", err)
	}
	if len(cells) != 1 || cells[0].Value != 42 {
		t.Errorf("cells = %+v", cells)
	}
}

func TestStore_ReadHonoursContext(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ReadCells(ctx, row.PartitionKey("p"), []row.Slice{row.Whole()}); err == nil {
		t.Error("expected error from cancelled context")
	}
}
