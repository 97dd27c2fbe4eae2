package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/compiler"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
	"github.com/kailas-cloud/rowsearch/internal/metrics"
)

// Service compiles condition trees, searches the index and materializes rows.
type Service struct {
	schema *schema.Schema
	index  Index
	rows   *Materializer
	logger *zap.Logger
}

// New creates a search service. logger can be nil.
func New(s *schema.Schema, index Index, rows *Materializer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{schema: s, index: index, rows: rows, logger: logger}
}

// Compile translates a request into an engine request. A nil query matches everything.
func (s *Service) Compile(req *request.Request) (*db.SearchRequest, error) {
	var q db.Query = &db.MatchAllQuery{}
	if req.Query() != nil {
		compiled, err := compiler.Compile(req.Query(), s.schema)
		if err != nil {
			return nil, fmt.Errorf("compile query: %w", err)
		}
		q = compiled
	}

	out := &db.SearchRequest{Query: q, Limit: req.Limit()}
	if req.Filter() != nil {
		f, err := compiler.Compile(req.Filter(), s.schema)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		out.Filter = f
	}

	sort, err := compiler.CompileSort(req.Sort(), s.schema)
	if err != nil {
		return nil, fmt.Errorf("compile sort: %w", err)
	}
	out.Sort = sort
	return out, nil
}

// Search runs a request and returns the matching rows as of now, in rank order.
// Validation failures are returned before the index is called. When some
// storage reads fail the rows that could be read are returned with the error.
func (s *Service) Search(ctx context.Context, req *request.Request, now time.Time) ([]result.ScoredRow, error) {
	start := time.Now()
	rows, err := s.search(ctx, req, now)

	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Warn("search failed", zap.Error(err))
	}
	metrics.SearchRequestsTotal.WithLabelValues(status).Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	return rows, err
}

func (s *Service) search(ctx context.Context, req *request.Request, now time.Time) ([]result.ScoredRow, error) {
	native, err := s.Compile(req)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Search(ctx, native)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search hits", zap.Stringer("query", native.Query), zap.Int("hits", len(hits)))
	if len(hits) == 0 {
		return nil, nil
	}

	rows, err := s.rows.Materialize(ctx, hits, now)
	return rankOrder(hits, rows), err
}

// rankOrder restores the index's hit order, which materialization gives up.
func rankOrder(hits []result.Hit, rows []result.ScoredRow) []result.ScoredRow {
	pos := make(map[rowKey]int, len(hits))
	for i, h := range hits {
		id := keyOf(h.PartitionKey(), h.ClusteringKey())
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	ordered := make([]result.ScoredRow, 0, len(rows))
	slots := make([]*result.ScoredRow, len(hits))
	for i := range rows {
		r := &rows[i]
		if p, ok := pos[keyOf(r.Row.PartitionKey, r.Row.ClusteringKey)]; ok && slots[p] == nil {
			slots[p] = r
		}
	}
	for _, r := range slots {
		if r != nil {
			ordered = append(ordered, *r)
		}
	}
	return ordered
}

// rowKey identifies a row by its raw keys. Binary keys may hold any byte, so
// the two parts stay separate fields.
type rowKey struct {
	pk, ck string
}

func keyOf(pk, ck []byte) rowKey {
	return rowKey{pk: string(pk), ck: string(ck)}
}
