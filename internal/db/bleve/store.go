// Package bleve implements db.Engine on an embedded Bleve index.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"

	"github.com/kailas-cloud/rowsearch/internal/db"
)

// Compile-time check: Store implements db.Engine.
var _ db.Engine = (*Store)(nil)

// DefaultDeleteBatchSize is the number of documents removed per round of a delete-by-query.
const DefaultDeleteBatchSize = 1000

// Config holds index location parameters.
type Config struct {
	// Path of the on-disk index. Empty keeps the index in memory.
	Path string
	// DeleteBatchSize bounds each round of a delete-by-query.
	DeleteBatchSize int
}

// Store implements db.Engine on a single Bleve index created by CreateIndex.
type Store struct {
	cfg Config

	mu    sync.RWMutex
	index bleve.Index
	def   *db.IndexDefinition
}

// NewStore creates a store. The index is opened by CreateIndex.
func NewStore(cfg Config) *Store {
	if cfg.DeleteBatchSize <= 0 {
		cfg.DeleteBatchSize = DefaultDeleteBatchSize
	}
	return &Store{cfg: cfg}
}

// CreateIndex builds the mapping and opens the index. An existing on-disk index
// at the configured path is reopened as is.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: db.ErrIndexExists}
	}

	im, err := buildMapping(def)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: fmt.Errorf("build mapping: %w", err)}
	}

	var idx bleve.Index
	switch {
	case s.cfg.Path == "":
		idx, err = bleve.NewMemOnly(im)
	default:
		idx, err = bleve.Open(s.cfg.Path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(s.cfg.Path, im)
		}
	}
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	s.index = idx
	s.def = def
	return nil
}

// Ping reports whether the index is open.
func (s *Store) Ping(_ context.Context) error {
	if _, err := s.open(db.OpPing); err != nil {
		return err
	}
	return nil
}

// DocCount returns the number of indexed documents.
func (s *Store) DocCount(_ context.Context) (uint64, error) {
	idx, err := s.open(db.OpCount)
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	return n, nil
}

// Close flushes and closes the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}

// Upsert replaces the document addressed by an ID term.
func (s *Store) Upsert(_ context.Context, term db.Term, doc *db.Document) error {
	if term.Field != db.IDField {
		return &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("%w: upsert by %s", db.ErrUnsupportedQuery, term.Field)}
	}
	idx, err := s.open(db.OpUpsert)
	if err != nil {
		return err
	}
	if err := idx.Index(term.Text, toBleveDoc(doc)); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// DeleteTerm removes every document carrying the term.
func (s *Store) DeleteTerm(ctx context.Context, term db.Term) error {
	idx, err := s.open(db.OpDeleteTerm)
	if err != nil {
		return err
	}
	if term.Field == db.IDField {
		if err := idx.Delete(term.Text); err != nil {
			return &db.Error{Op: db.OpDeleteTerm, Err: err}
		}
		return nil
	}

	q := bleve.NewTermQuery(term.Text)
	q.SetField(term.Field)
	if _, err := s.deleteMatching(ctx, idx, q); err != nil {
		return &db.Error{Op: db.OpDeleteTerm, Err: err}
	}
	return nil
}

// DeleteQuery removes every document matching q.
func (s *Store) DeleteQuery(ctx context.Context, q db.Query) (int, error) {
	idx, err := s.open(db.OpDeleteQuery)
	if err != nil {
		return 0, err
	}
	bq, err := translate(q, 1)
	if err != nil {
		return 0, &db.Error{Op: db.OpDeleteQuery, Err: err}
	}
	n, err := s.deleteMatching(ctx, idx, bq)
	if err != nil {
		return n, &db.Error{Op: db.OpDeleteQuery, Err: err}
	}
	return n, nil
}

// deleteMatching removes matches in rounds until none remain.
func (s *Store) deleteMatching(ctx context.Context, idx bleve.Index, q bleveQuery) (int, error) {
	deleted := 0
	for {
		req := bleve.NewSearchRequestOptions(q, s.cfg.DeleteBatchSize, 0, false)
		req.SortByCustom(blevesearch.SortOrder{&blevesearch.SortDocID{}})
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return deleted, err
		}
		if len(res.Hits) == 0 {
			return deleted, nil
		}

		batch := idx.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return deleted, err
		}
		deleted += len(res.Hits)
	}
}

// Search runs a ranked search. Hits are ordered by the requested sort, then by
// descending score, then by document ID.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	idx, err := s.open(db.OpSearch)
	if err != nil {
		return nil, err
	}

	q, err := buildSearchQuery(req)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	sr := bleve.NewSearchRequestOptions(q, limit, 0, false)
	sr.Fields = req.Fields
	sr.SortByCustom(sortOrder(req.Sort))

	res, err := idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	out := &db.SearchResult{Total: int(res.Total), Hits: make([]db.Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, db.Hit{ID: h.ID, Score: h.Score, Fields: stringFields(h.Fields)})
	}
	return out, nil
}

func (s *Store) open(op string) (bleve.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, &db.Error{Op: op, Err: db.ErrIndexNotFound}
	}
	return s.index, nil
}

func sortOrder(fields []db.SortField) blevesearch.SortOrder {
	order := make(blevesearch.SortOrder, 0, len(fields)+2)
	for _, f := range fields {
		sf := &blevesearch.SortField{
			Field:   f.Field,
			Desc:    f.Descending,
			Type:    blevesearch.SortFieldAsString,
			Missing: blevesearch.SortFieldMissingLast,
		}
		if f.Numeric {
			sf.Type = blevesearch.SortFieldAsNumber
		}
		order = append(order, sf)
	}
	return append(order, &blevesearch.SortScore{Desc: true}, &blevesearch.SortDocID{})
}

// toBleveDoc flattens a document into the map form Bleve walks.
func toBleveDoc(doc *db.Document) map[string]any {
	out := make(map[string]any, len(doc.Fields))
	for _, f := range doc.Fields {
		switch {
		case f.Kind == db.FieldNumeric && len(f.Numbers) == 1:
			out[f.Name] = f.Numbers[0]
		case f.Kind == db.FieldNumeric && len(f.Numbers) > 1:
			vals := make([]any, len(f.Numbers))
			for i, n := range f.Numbers {
				vals[i] = n
			}
			out[f.Name] = vals
		case len(f.Terms) == 1:
			out[f.Name] = f.Terms[0]
		case len(f.Terms) > 1:
			vals := make([]any, len(f.Terms))
			for i, t := range f.Terms {
				vals[i] = t
			}
			out[f.Name] = vals
		}
	}
	return out
}

func stringFields(fields map[string]any) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for name, v := range fields {
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		switch t := v.(type) {
		case string:
			out[name] = t
		case float64:
			out[name] = strconv.FormatFloat(t, 'g', -1, 64)
		default:
			out[name] = fmt.Sprint(t)
		}
	}
	return out
}
