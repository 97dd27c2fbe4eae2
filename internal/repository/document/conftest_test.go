package document

import (
	"context"
	"testing"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	upsertFn      func(ctx context.Context, term db.Term, doc *db.Document) error
	deleteTermFn  func(ctx context.Context, term db.Term) error
	deleteQueryFn func(ctx context.Context, q db.Query) (int, error)
	searchFn      func(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error)
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) Upsert(ctx context.Context, term db.Term, doc *db.Document) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, term, doc)
	}
	return nil
}

func (m *mockStore) DeleteTerm(ctx context.Context, term db.Term) error {
	if m.deleteTermFn != nil {
		return m.deleteTermFn(ctx, term)
	}
	return nil
}

func (m *mockStore) DeleteQuery(ctx context.Context, q db.Query) (int, error) {
	if m.deleteQueryFn != nil {
		return m.deleteQueryFn(ctx, q)
	}
	return 0, nil
}

func (m *mockStore) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return &db.SearchResult{}, nil
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build("", map[string]schema.Declaration{
		"city": {Kind: schema.KindText},
		"age":  {Kind: schema.KindInteger},
		"tags": {Kind: schema.KindString},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, NewMapper(testSchema(t))), ms
}
