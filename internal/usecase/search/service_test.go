package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
)

// fakeIndex returns canned hits and records the last request.
type fakeIndex struct {
	hits  []result.Hit
	err   error
	calls int
	last  *db.SearchRequest
}

func (f *fakeIndex) Search(_ context.Context, req *db.SearchRequest) ([]result.Hit, error) {
	f.calls++
	f.last = req
	return f.hits, f.err
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build(db.AnalyzerStandard, map[string]schema.Declaration{
		"city": {Kind: schema.KindText},
		"age":  {Kind: schema.KindInteger},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func parse(t *testing.T, raw string) condition.Condition {
	t.Helper()
	c, err := condition.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return c
}

func newRequest(t *testing.T, query, filter condition.Condition, sort ...request.SortField) *request.Request {
	t.Helper()
	req, err := request.New(query, filter, sort, 0)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return &req
}

func TestService_Compile(t *testing.T) {
	svc := New(testSchema(t), &fakeIndex{}, NewMaterializer(newFakeRows(), nil), nil)

	native, err := svc.Compile(newRequest(t, nil,
		parse(t, `{"type":"range","field":"age","lower":18}`),
		request.SortField{Field: "age", Reverse: true},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := native.Query.(*db.MatchAllQuery); !ok {
		t.Errorf("nil query should match all, got %s", native.Query)
	}
	if native.Filter == nil {
		t.Error("filter not compiled")
	}
	if len(native.Sort) != 1 || native.Sort[0].Field != "age" || !native.Sort[0].Descending {
		t.Errorf("sort = %+v", native.Sort)
	}
	if native.Limit != request.DefaultLimit {
		t.Errorf("limit = %d", native.Limit)
	}
}

func TestService_ValidationSkipsIndex(t *testing.T) {
	tests := []struct {
		name  string
		query string
		sort  []request.SortField
		want  error
	}{
		{"unmapped query field", `{"type":"match","field":"country","value":"es"}`, nil, domain.ErrUnmappedColumn},
		{"pattern on numeric", `{"type":"prefix","field":"age","value":"3"}`, nil, domain.ErrUnsupportedConditionOnType},
		{"unmapped sort field", `{"type":"match","field":"city","value":"x"}`, []request.SortField{{Field: "zip"}}, domain.ErrUnmappedColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{}
			svc := New(testSchema(t), idx, NewMaterializer(newFakeRows(), nil), nil)

			_, err := svc.Search(context.Background(), newRequest(t, parse(t, tt.query), nil, tt.sort...), time.Now())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if domain.IsRetryable(err) {
				t.Error("validation errors are permanent")
			}
			if idx.calls != 0 {
				t.Error("index must not be called")
			}
		})
	}
}

func TestService_RankOrder(t *testing.T) {
	rows := newFakeRows()
	rows.put("p1", "a")
	rows.put("p2", "a", "b")
	idx := &fakeIndex{hits: []result.Hit{hit("p2", "b", 3), hit("p1", "a", 2), hit("p2", "a", 1)}}
	svc := New(testSchema(t), idx, NewMaterializer(rows, nil), nil)

	got, err := svc.Search(context.Background(), newRequest(t, nil, nil), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"p2/b", "p1/a", "p2/a"}; !equal(keysOf(got), want) {
		t.Errorf("rows = %v, want %v", keysOf(got), want)
	}
}

func TestRankOrder_BinaryKeysWithZeroBytes(t *testing.T) {
	hits := []result.Hit{hit("a\x00", "b", 2), hit("a", "\x00b", 1)}
	rows := []result.ScoredRow{
		{Row: row.Row{PartitionKey: row.PartitionKey("a"), ClusteringKey: row.ClusteringKey("\x00b")}, Score: 1},
		{Row: row.Row{PartitionKey: row.PartitionKey("a\x00"), ClusteringKey: row.ClusteringKey("b")}, Score: 2},
	}

	got := rankOrder(hits, rows)
	if len(got) != 2 {
		t.Fatalf("kept %d of 2 distinct rows", len(got))
	}
	if string(got[0].Row.PartitionKey) != "a\x00" || string(got[1].Row.ClusteringKey) != "\x00b" {
		t.Errorf("order = %q, %q", keysOf(got)[0], keysOf(got)[1])
	}
}

func TestService_NoHits(t *testing.T) {
	rows := newFakeRows()
	svc := New(testSchema(t), &fakeIndex{}, NewMaterializer(rows, nil), nil)

	got, err := svc.Search(context.Background(), newRequest(t, nil, nil), time.Now())
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
	if len(rows.calls) != 0 {
		t.Error("storage must not be read without hits")
	}
}

func TestService_IndexError(t *testing.T) {
	idx := &fakeIndex{err: errBoom}
	svc := New(testSchema(t), idx, NewMaterializer(newFakeRows(), nil), nil)

	_, err := svc.Search(context.Background(), newRequest(t, nil, nil), time.Now())
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestService_PartialMaterialization(t *testing.T) {
	rows := newFakeRows()
	rows.put("p1", "a")
	rows.put("p2", "a")
	rows.failOn["p1"] = true
	idx := &fakeIndex{hits: []result.Hit{hit("p1", "a", 2), hit("p2", "a", 1)}}
	svc := New(testSchema(t), idx, NewMaterializer(rows, nil), nil)

	got, err := svc.Search(context.Background(), newRequest(t, nil, nil), time.Now())
	if !errors.Is(err, domain.ErrStorageRead) {
		t.Fatalf("expected storage read error, got %v", err)
	}
	if want := []string{"p2/a"}; !equal(keysOf(got), want) {
		t.Errorf("rows = %v, want %v", keysOf(got), want)
	}
}
