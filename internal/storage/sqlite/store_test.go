package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, table *cql.Table) storagetest.Store {
		s, err := New(":memory:", table)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestNew_RequiresTable(t *testing.T) {
	if _, err := New(":memory:", nil); err == nil {
		t.Error("expected error without a table")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	table := storagetest.Table(t)
	path := filepath.Join(t.TempDir(), "cells.db")

	s, err := New(path, table)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := &row.Mutation{
		PartitionKey: row.PartitionKey("p"),
		Timestamp:    time.Unix(1, 0),
		Cells: []row.Cell{
			{Clustering: row.ClusteringKey("01")},
			{Clustering: row.ClusteringKey("01"), Column: "name", Value: "alice"},
		},
	}
	if err := s.Apply(context.Background(), m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = New(path, table)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	cells, err := s.ReadCells(context.Background(), row.PartitionKey("p"), []row.Slice{row.Whole()})
	if err != nil {
		t.Fatalf("ReadCells: %v", err)
	}
	if len(cells) != 2 || cells[1].Value != "alice" {
		t.Errorf("cells = %+v", cells)
	}
	if !cells[0].Timestamp.Equal(time.Unix(1, 0)) {
		t.Errorf("timestamp = %v", cells[0].Timestamp)
	}
}

func TestSliceFilter(t *testing.T) {
	tests := []struct {
		name   string
		slices []row.Slice
		where  string
		args   int
	}{
		{"whole", []row.Slice{row.Whole()}, "1", 0},
		{"point", []row.Slice{row.Point(row.ClusteringKey("a"))}, "(ck >= ? AND ck <= ?)", 2},
		{"open end", []row.Slice{{Start: row.ClusteringKey("a")}}, "(ck >= ?)", 1},
		{
			"two",
			[]row.Slice{row.Point(row.ClusteringKey("a")), {End: row.ClusteringKey("z")}},
			"(ck >= ? AND ck <= ?) OR (ck <= ?)",
			3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := sliceFilter(tt.slices)
			if where != tt.where {
				t.Errorf("where = %q, want %q", where, tt.where)
			}
			if len(args) != tt.args {
				t.Errorf("args = %d, want %d", len(args), tt.args)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	s := &Store{table: storagetest.Table(t)}

	b, err := s.encode(row.Cell{Column: "age", Value: 42})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := s.decode("age", b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != int32(42) {
		t.Errorf("decoded %#v, want int32(42)", v)
	}

	if b, _ := s.encode(row.Cell{Column: "age", Deleted: true}); b != nil {
		t.Error("deleted cells carry no payload")
	}
	if b, _ := s.encode(row.Cell{}); b != nil {
		t.Error("row markers carry no payload")
	}
}
