package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/rowsearch/internal/db"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
)

// store is the consumer interface for the index engine (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	Upsert(ctx context.Context, term db.Term, doc *db.Document) error
	DeleteTerm(ctx context.Context, term db.Term) error
	DeleteQuery(ctx context.Context, q db.Query) (int, error)
	Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error)
}

// identityFields are returned with every hit so keys can be recovered.
var identityFields = []string{schema.PartitionKeyField, schema.ClusteringKeyField}

// Repo keeps index documents in step with rows.
type Repo struct {
	store  store
	mapper *Mapper
}

// New creates a document repository.
func New(s store, m *Mapper) *Repo {
	return &Repo{store: s, mapper: m}
}

// Mapper returns the row/document mapper.
func (r *Repo) Mapper() *Mapper { return r.mapper }

// EnsureIndex creates the engine index, accepting one that already exists.
func (r *Repo) EnsureIndex(ctx context.Context, name string, prefixes ...string) error {
	def, err := r.mapper.Schema().IndexDefinition(name, prefixes...)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("%w: create index %s: %w", domain.ErrIndexEngine, name, err)
	}
	return nil
}

// Upsert replaces the document of a row.
func (r *Repo) Upsert(ctx context.Context, lr row.Row) error {
	doc, err := r.mapper.Document(lr)
	if err != nil {
		return err
	}
	term := r.mapper.RowTerm(lr.PartitionKey, lr.ClusteringKey)
	if err := r.store.Upsert(ctx, term, doc); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", domain.ErrIndexEngine, term, err)
	}
	return nil
}

// DeleteRow removes the document of one row.
func (r *Repo) DeleteRow(ctx context.Context, pk row.PartitionKey, ck row.ClusteringKey) error {
	term := r.mapper.RowTerm(pk, ck)
	if err := r.store.DeleteTerm(ctx, term); err != nil {
		return fmt.Errorf("%w: delete %s: %w", domain.ErrIndexEngine, term, err)
	}
	return nil
}

// DeletePartition removes every document of a partition.
func (r *Repo) DeletePartition(ctx context.Context, pk row.PartitionKey) error {
	term := r.mapper.PartitionTerm(pk)
	if err := r.store.DeleteTerm(ctx, term); err != nil {
		return fmt.Errorf("%w: delete %s: %w", domain.ErrIndexEngine, term, err)
	}
	return nil
}

// DeleteRange removes the documents of a partition covered by a range tombstone.
func (r *Repo) DeleteRange(ctx context.Context, pk row.PartitionKey, t row.RangeTombstone) (int, error) {
	q := r.mapper.RangeQuery(pk, t)
	n, err := r.store.DeleteQuery(ctx, q)
	if err != nil {
		return n, fmt.Errorf("%w: delete by query %s: %w", domain.ErrIndexEngine, q, err)
	}
	return n, nil
}

// Search runs a compiled request and decodes the hits into row keys.
func (r *Repo) Search(ctx context.Context, req *db.SearchRequest) ([]result.Hit, error) {
	sr := *req
	sr.Fields = identityFields

	res, err := r.store.Search(ctx, &sr)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", domain.ErrIndexEngine, req.Query, err)
	}

	hits := make([]result.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pk, ck, err := r.mapper.Keys(h)
		if err != nil {
			return nil, fmt.Errorf("%w: search %s: %w", domain.ErrIndexEngine, req.Query, err)
		}
		hits = append(hits, result.NewHit(pk, ck, h.Score))
	}
	return hits, nil
}
