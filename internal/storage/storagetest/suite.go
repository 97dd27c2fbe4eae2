// Package storagetest holds behaviour tests shared by the cell store implementations.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
)

// Store is the behaviour under test.
type Store interface {
	Apply(ctx context.Context, m *row.Mutation) error
	ReadCells(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error)
	Partitions(ctx context.Context) ([]row.PartitionKey, error)
	Ping(ctx context.Context) error
	Close() error
}

// Factory opens an empty store over the table.
type Factory func(t *testing.T, table *cql.Table) Store

// Table returns the table every suite test writes to.
func Table(t *testing.T) *cql.Table {
	t.Helper()
	table, err := cql.NewTable("users", map[string]string{
		"name": "text",
		"age":  "int",
		"tags": "set<text>",
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

// Run exercises a store implementation.
func Run(t *testing.T, open Factory) {
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, open) })
	t.Run("LatestTimestampWins", func(t *testing.T) { testLatestWins(t, open) })
	t.Run("Slices", func(t *testing.T) { testSlices(t, open) })
	t.Run("PartitionDeletion", func(t *testing.T) { testPartitionDeletion(t, open) })
	t.Run("RangeTombstone", func(t *testing.T) { testRangeTombstone(t, open) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, open) })
	t.Run("InvalidMutation", func(t *testing.T) { testInvalidMutation(t, open) })
	t.Run("PartitionsInTokenOrder", func(t *testing.T) { testPartitions(t, open) })
}

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func ck(s string) row.ClusteringKey { return row.ClusteringKey(s) }

func insert(pk, key string, ts int64, cols map[string]any) *row.Mutation {
	m := &row.Mutation{PartitionKey: row.PartitionKey(pk), Timestamp: at(ts)}
	m.Cells = append(m.Cells, row.Cell{Clustering: ck(key)})
	for c, v := range cols {
		m.Cells = append(m.Cells, row.Cell{Clustering: ck(key), Column: c, Value: v})
	}
	return m
}

func apply(t *testing.T, s Store, ms ...*row.Mutation) {
	t.Helper()
	for _, m := range ms {
		if err := s.Apply(context.Background(), m); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
}

func read(t *testing.T, s Store, pk string, slices ...row.Slice) []row.Cell {
	t.Helper()
	if len(slices) == 0 {
		slices = []row.Slice{row.Whole()}
	}
	cells, err := s.ReadCells(context.Background(), row.PartitionKey(pk), slices)
	if err != nil {
		t.Fatalf("ReadCells: %v", err)
	}
	return cells
}

func live(cells []row.Cell, now time.Time) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, c := range cells {
		if !c.LiveAt(now) {
			continue
		}
		r, ok := out[string(c.Clustering)]
		if !ok {
			r = make(map[string]any)
			out[string(c.Clustering)] = r
		}
		if !c.IsMarker() {
			r[c.Column] = c.Value
		}
	}
	return out
}

func testReadYourWrites(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	apply(t, s, insert("p", "01", 1, map[string]any{"name": "alice", "age": 30, "tags": []any{"x", "y"}}))
	rows := live(read(t, s, "p"), at(2))
	got, ok := rows["01"]
	if !ok {
		t.Fatalf("row 01 missing: %v", rows)
	}
	if got["name"] != "alice" {
		t.Errorf("name = %v, want alice", got["name"])
	}
	if got["age"] != int32(30) {
		t.Errorf("age = %#v, want int32(30)", got["age"])
	}
	tags, ok := got["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Errorf("tags = %#v", got["tags"])
	}

	if cells := read(t, s, "missing"); len(cells) != 0 {
		t.Errorf("missing partition returned %d cells", len(cells))
	}
}

func testLatestWins(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	apply(t, s,
		insert("p", "01", 5, map[string]any{"name": "new"}),
		insert("p", "01", 1, map[string]any{"name": "old"}),
	)
	if got := live(read(t, s, "p"), at(6))["01"]["name"]; got != "new" {
		t.Errorf("name = %v, want new", got)
	}

	apply(t, s, &row.Mutation{
		PartitionKey: row.PartitionKey("p"),
		Timestamp:    at(7),
		Cells:        []row.Cell{{Clustering: ck("01"), Column: "name", Deleted: true}},
	})
	r := live(read(t, s, "p"), at(8))["01"]
	if _, ok := r["name"]; ok {
		t.Errorf("deleted column still live: %v", r)
	}
	if r == nil {
		t.Error("row marker should keep the row alive")
	}
}

func testSlices(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	apply(t, s,
		insert("p", "01", 1, map[string]any{"name": "a"}),
		insert("p", "02", 1, map[string]any{"name": "b"}),
		insert("p", "03", 1, map[string]any{"name": "c"}),
	)

	rows := live(read(t, s, "p", row.Point(ck("01")), row.Point(ck("03"))), at(2))
	if len(rows) != 2 || rows["01"] == nil || rows["03"] == nil {
		t.Errorf("point slices = %v", rows)
	}
	rows = live(read(t, s, "p", row.Slice{Start: ck("02")}), at(2))
	if len(rows) != 2 || rows["02"] == nil || rows["03"] == nil {
		t.Errorf("open slice = %v", rows)
	}

	cells := read(t, s, "p")
	for i := 1; i < len(cells); i++ {
		if cells[i-1].Clustering.Compare(cells[i].Clustering) > 0 {
			t.Fatalf("cells out of clustering order at %d", i)
		}
	}
}

func testPartitionDeletion(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	del := at(5)
	apply(t, s,
		insert("p", "01", 1, map[string]any{"name": "a"}),
		&row.Mutation{PartitionKey: row.PartitionKey("p"), Timestamp: del, PartitionDeletion: &del},
		insert("p", "02", 6, map[string]any{"name": "b"}),
	)
	rows := live(read(t, s, "p"), at(7))
	if _, ok := rows["01"]; ok {
		t.Error("row written before the deletion survived")
	}
	if _, ok := rows["02"]; !ok {
		t.Error("row written after the deletion is missing")
	}
}

func testRangeTombstone(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	apply(t, s,
		insert("p", "01", 1, map[string]any{"name": "a"}),
		insert("p", "02", 1, map[string]any{"name": "b"}),
		insert("p", "03", 1, map[string]any{"name": "c"}),
		&row.Mutation{
			PartitionKey: row.PartitionKey("p"),
			Timestamp:    at(2),
			RangeTombstones: []row.RangeTombstone{{
				Start: &row.Bound{Key: ck("01"), Inclusive: false},
				End:   &row.Bound{Key: ck("03"), Inclusive: true},
			}},
		},
	)
	rows := live(read(t, s, "p"), at(3))
	if len(rows) != 1 || rows["01"] == nil {
		t.Errorf("rows after range delete = %v", rows)
	}
}

func testTTL(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	apply(t, s, &row.Mutation{
		PartitionKey: row.PartitionKey("p"),
		Timestamp:    at(1),
		Cells: []row.Cell{
			{Clustering: ck("01")},
			{Clustering: ck("01"), Column: "name", Value: "temp", ExpiresAt: at(10)},
		},
	})
	cells := read(t, s, "p")
	if live(cells, at(5))["01"]["name"] != "temp" {
		t.Error("value should be live before expiry")
	}
	if _, ok := live(cells, at(10))["01"]["name"]; ok {
		t.Error("value should expire at its deadline")
	}
}

func testInvalidMutation(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	tests := []struct {
		name string
		m    *row.Mutation
	}{
		{"no partition", &row.Mutation{Timestamp: at(1)}},
		{"unknown column", insert("p", "01", 1, map[string]any{"nope": "x"})},
		{"bad value", insert("p", "01", 1, map[string]any{"age": "not a number"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Apply(context.Background(), tt.m)
			if !errors.Is(err, domain.ErrInvalidMutation) {
				t.Errorf("err = %v, want ErrInvalidMutation", err)
			}
		})
	}
}

func testPartitions(t *testing.T, open Factory) {
	s := open(t, Table(t))
	defer s.Close()

	for _, pk := range []string{"a", "b", "c", "d", "e"} {
		apply(t, s, insert(pk, "01", 1, map[string]any{"name": pk}))
	}
	keys, err := s.Partitions(context.Background())
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("len = %d, want 5", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1].Token() > keys[i].Token() {
			t.Errorf("partitions not in token order at %d", i)
		}
	}
}
