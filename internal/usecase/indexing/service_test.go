package indexing

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/repository/cells"
	"github.com/kailas-cloud/rowsearch/internal/repository/document"
	"github.com/kailas-cloud/rowsearch/internal/storage/memory"
)

// --- Fakes ---

type fakeIndex struct {
	docs        map[string]row.Row // by row id
	upsertErr   error
	deleteCalls []string
	rangeCalls  int
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: make(map[string]row.Row)} }

func (f *fakeIndex) Upsert(_ context.Context, r row.Row) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs[document.RowID(r.PartitionKey, r.ClusteringKey)] = r
	return nil
}

func (f *fakeIndex) DeleteRow(_ context.Context, pk row.PartitionKey, ck row.ClusteringKey) error {
	id := document.RowID(pk, ck)
	f.deleteCalls = append(f.deleteCalls, id)
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) DeletePartition(_ context.Context, pk row.PartitionKey) error {
	for id, r := range f.docs {
		if r.PartitionKey.Equal(pk) {
			delete(f.docs, id)
		}
	}
	return nil
}

func (f *fakeIndex) DeleteRange(_ context.Context, pk row.PartitionKey, t row.RangeTombstone) (int, error) {
	f.rangeCalls++
	n := 0
	for id, r := range f.docs {
		if r.PartitionKey.Equal(pk) && t.Covers(r.ClusteringKey) {
			delete(f.docs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeIndex) ids() []string {
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type countingRows struct {
	Rows
	reads   int
	failOn  int // 1-based read call that fails; 0 never
	batches [][]row.ClusteringKey
}

func (c *countingRows) ReadRows(
	ctx context.Context, pk row.PartitionKey, cks []row.ClusteringKey, now time.Time,
) ([]row.Row, error) {
	c.reads++
	c.batches = append(c.batches, cks)
	if c.reads == c.failOn {
		return nil, domain.ErrStorageRead
	}
	return c.Rows.ReadRows(ctx, pk, cks, now)
}

// --- Helpers ---

type env struct {
	store *memory.Store
	index *fakeIndex
	rows  *countingRows
	svc   *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := schema.Build("", map[string]schema.Declaration{"name": {Kind: schema.KindString}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	st := memory.New(nil)
	rows := &countingRows{Rows: cells.New(st, document.NewMapper(s))}
	idx := newFakeIndex()
	return &env{store: st, index: idx, rows: rows, svc: New(idx, rows, nil)}
}

// write applies the mutation to storage, then indexes it.
func (e *env) write(t *testing.T, m *row.Mutation) Outcome {
	t.Helper()
	if err := e.store.Apply(context.Background(), m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, err := e.svc.Index(context.Background(), m)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	return out
}

func insert(pk string, ts int64, keys ...byte) *row.Mutation {
	m := &row.Mutation{PartitionKey: row.PartitionKey(pk), Timestamp: time.Unix(ts, 0)}
	for _, k := range keys {
		ck := row.ClusteringKey{k}
		m.Cells = append(m.Cells,
			row.Cell{Clustering: ck},
			row.Cell{Clustering: ck, Column: "name", Value: string(rune('a' + k))},
		)
	}
	return m
}

// --- State machine ---

func TestClassify(t *testing.T) {
	del := time.Unix(1, 0)
	tests := []struct {
		name string
		m    row.Mutation
		want State
	}{
		{"cells", row.Mutation{Cells: []row.Cell{{}}, RangeTombstones: []row.RangeTombstone{{}}}, Upserted},
		{"range", row.Mutation{RangeTombstones: []row.RangeTombstone{{}}, PartitionDeletion: &del}, RangeDeleted},
		{"partition", row.Mutation{PartitionDeletion: &del}, PartitionDeleted},
		{"empty", row.Mutation{}, NoOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.m); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	legal := [][2]State{
		{Received, Classified},
		{Classified, Upserted}, {Classified, PartitionDeleted}, {Classified, RangeDeleted}, {Classified, NoOp},
		{Upserted, Done}, {PartitionDeleted, Done}, {RangeDeleted, Done}, {NoOp, Done},
	}
	allowed := make(map[[2]State]bool)
	for _, p := range legal {
		allowed[p] = true
	}
	for from := Received; from <= Done; from++ {
		for to := Received; to <= Done; to++ {
			if got := from.CanTransition(to); got != allowed[[2]State{from, to}] {
				t.Errorf("%s -> %s allowed = %v", from, to, got)
			}
		}
	}
}

func TestOutcome_String(t *testing.T) {
	out := Outcome{Path: []State{Received, Classified, NoOp, Done}}
	if got := out.String(); got != "received -> classified -> noop -> done" {
		t.Errorf("String = %q", got)
	}
	if out.Branch() != NoOp {
		t.Errorf("Branch = %s", out.Branch())
	}
	if (&Outcome{Path: []State{Received}}).Branch() != Received {
		t.Error("unclassified outcome should report Received")
	}
}

// --- Index ---

func TestIndex_Upsert(t *testing.T) {
	e := newEnv(t)
	out := e.write(t, insert("p", 1, 1, 2))

	want := []State{Received, Classified, Upserted, Done}
	if !reflect.DeepEqual(out.Path, want) {
		t.Errorf("path = %v, want %v", out.Path, want)
	}
	if out.Upserted != 2 {
		t.Errorf("upserted = %d, want 2", out.Upserted)
	}
	if got := e.index.ids(); !reflect.DeepEqual(got, []string{"70:01", "70:02"}) {
		t.Errorf("index = %v", got)
	}
	if e.index.docs["70:01"].Columns["name"] != "b" {
		t.Errorf("row 01 = %+v", e.index.docs["70:01"])
	}
}

func TestIndex_Batches(t *testing.T) {
	e := newEnv(t)
	e.svc.WithBatchSize(2)
	e.write(t, insert("p", 1, 1, 2, 3, 4, 5))

	if len(e.rows.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(e.rows.batches))
	}
	if len(e.rows.batches[2]) != 1 || e.rows.batches[2][0][0] != 5 {
		t.Errorf("last batch = %v", e.rows.batches[2])
	}
	if len(e.index.docs) != 5 {
		t.Errorf("indexed = %d, want 5", len(e.index.docs))
	}
}

func TestIndex_FailedBatchDoesNotStopOthers(t *testing.T) {
	e := newEnv(t)
	e.svc.WithBatchSize(2)
	e.rows.failOn = 1
	m := insert("p", 1, 1, 2, 3)
	if err := e.store.Apply(context.Background(), m); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	out, err := e.svc.Index(context.Background(), m)
	if !errors.Is(err, domain.ErrStorageRead) {
		t.Fatalf("expected ErrStorageRead, got %v", err)
	}
	if out.Current() != Upserted {
		t.Errorf("failed run should stop before Done, at %s", out.Current())
	}
	if got := e.index.ids(); !reflect.DeepEqual(got, []string{"70:03"}) {
		t.Errorf("second batch should still be indexed, got %v", got)
	}
}

func TestIndex_DeletedCellRemovesDocument(t *testing.T) {
	e := newEnv(t)
	e.write(t, insert("p", 1, 1, 2))

	out := e.write(t, &row.Mutation{
		PartitionKey: row.PartitionKey("p"),
		Timestamp:    time.Unix(2, 0),
		Cells: []row.Cell{
			{Clustering: row.ClusteringKey{1}, Deleted: true},
			{Clustering: row.ClusteringKey{1}, Column: "name", Deleted: true},
		},
	})
	if out.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", out.Deleted)
	}
	if got := e.index.ids(); !reflect.DeepEqual(got, []string{"70:02"}) {
		t.Errorf("index = %v", got)
	}
}

func TestIndex_RangeDelete(t *testing.T) {
	e := newEnv(t)
	e.write(t, insert("p", 1, 1, 2, 3))

	out := e.write(t, &row.Mutation{
		PartitionKey: row.PartitionKey("p"),
		Timestamp:    time.Unix(2, 0),
		RangeTombstones: []row.RangeTombstone{
			{Start: &row.Bound{Key: row.ClusteringKey{2}, Inclusive: true}},
		},
	})
	if out.Branch() != RangeDeleted || out.Deleted != 2 {
		t.Errorf("outcome = %s, deleted %d", &out, out.Deleted)
	}
	if got := e.index.ids(); !reflect.DeepEqual(got, []string{"70:01"}) {
		t.Errorf("index = %v", got)
	}
}

func TestIndex_PartitionDelete(t *testing.T) {
	e := newEnv(t)
	e.write(t, insert("p", 1, 1, 2))
	e.write(t, insert("q", 1, 1))

	del := time.Unix(2, 0)
	out := e.write(t, &row.Mutation{PartitionKey: row.PartitionKey("p"), Timestamp: del, PartitionDeletion: &del})
	if out.Branch() != PartitionDeleted {
		t.Errorf("branch = %s", out.Branch())
	}
	if got := e.index.ids(); !reflect.DeepEqual(got, []string{"71:01"}) {
		t.Errorf("index = %v", got)
	}
}

func TestIndex_NoOp(t *testing.T) {
	e := newEnv(t)
	out := e.write(t, &row.Mutation{PartitionKey: row.PartitionKey("p"), Timestamp: time.Unix(1, 0)})
	if !reflect.DeepEqual(out.Path, []State{Received, Classified, NoOp, Done}) {
		t.Errorf("path = %v", out.Path)
	}
	if e.rows.reads != 0 {
		t.Error("no-op must not read storage")
	}
}

func TestIndex_InvalidMutation(t *testing.T) {
	e := newEnv(t)
	out, err := e.svc.Index(context.Background(), &row.Mutation{})
	if !errors.Is(err, domain.ErrInvalidMutation) {
		t.Fatalf("expected ErrInvalidMutation, got %v", err)
	}
	if out.Current() != Received {
		t.Errorf("state = %s, want received", out.Current())
	}
}

func TestIndex_EngineErrorIsReported(t *testing.T) {
	e := newEnv(t)
	e.index.upsertErr = domain.ErrIndexEngine
	m := insert("p", 1, 1)
	if err := e.store.Apply(context.Background(), m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	_, err := e.svc.Index(context.Background(), m)
	if !domain.IsRetryable(err) {
		t.Errorf("expected retryable engine error, got %v", err)
	}
}

// --- Delete / Rebuild ---

func TestDelete(t *testing.T) {
	e := newEnv(t)
	e.write(t, insert("p", 1, 1))
	if err := e.svc.Delete(context.Background(), row.PartitionKey("p")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.index.docs) != 0 {
		t.Errorf("index = %v", e.index.ids())
	}
	if err := e.svc.Delete(context.Background(), nil); !errors.Is(err, domain.ErrInvalidMutation) {
		t.Errorf("expected ErrInvalidMutation, got %v", err)
	}
}

func TestRebuild(t *testing.T) {
	e := newEnv(t)
	for _, m := range []*row.Mutation{insert("p", 1, 1, 2), insert("q", 1, 1)} {
		if err := e.store.Apply(context.Background(), m); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	e.index.docs["70:09"] = row.Row{PartitionKey: row.PartitionKey("p"), ClusteringKey: row.ClusteringKey{9}}
	e.svc.now = func() time.Time { return time.Unix(5, 0) }

	stats, err := e.svc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Partitions != 2 || stats.Rows != 3 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if got := e.index.ids(); !reflect.DeepEqual(got, []string{"70:01", "70:02", "71:01"}) {
		t.Errorf("stale documents should be replaced, index = %v", got)
	}
}
