package rowsearch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
)

// SearchBuilder accumulates search parameters. Do runs the search.
type SearchBuilder struct {
	client *Client
	query  *Condition
	filter *Condition
	sort   []request.SortField
	limit  int
	at     time.Time
}

// Search starts a search. Without a query every row matches.
func (c *Client) Search() *SearchBuilder {
	return &SearchBuilder{client: c}
}

// Query sets the scoring condition.
func (b *SearchBuilder) Query(c Condition) *SearchBuilder {
	b.query = &c
	return b
}

// Filter sets a condition that restricts results without affecting scores.
func (b *SearchBuilder) Filter(c Condition) *SearchBuilder {
	b.filter = &c
	return b
}

// SortBy orders results by a mapped column. Calls accumulate; later calls break ties.
func (b *SearchBuilder) SortBy(field string, reverse bool) *SearchBuilder {
	b.sort = append(b.sort, request.SortField{Field: field, Reverse: reverse})
	return b
}

// Limit caps the number of returned rows.
func (b *SearchBuilder) Limit(n int) *SearchBuilder {
	b.limit = n
	return b
}

// At reads rows as of t instead of the current time. Cells that expired
// before t are not returned.
func (b *SearchBuilder) At(t time.Time) *SearchBuilder {
	b.at = t
	return b
}

// Do runs the search and returns matching rows in rank order.
// When storage fails for some hits, the rows that could be read are returned
// together with an error wrapping ErrStorageRead.
func (b *SearchBuilder) Do(ctx context.Context) (rows []Row, err error) {
	start := time.Now()
	defer func() {
		b.client.obs.rows("search", "returned", len(rows))
		b.client.obs.observe("search", start, err, zap.Int("rows", len(rows)))
	}()

	req, err := b.request()
	if err != nil {
		return nil, err
	}
	now := b.at
	if now.IsZero() {
		now = b.client.now()
	}
	res, err := b.client.searchSvc.Search(ctx, &req, now)
	return rowsFromDomain(res), err
}

func (b *SearchBuilder) request() (request.Request, error) {
	query, err := optional(b.query)
	if err != nil {
		return request.Request{}, fmt.Errorf("query: %w", err)
	}
	filter, err := optional(b.filter)
	if err != nil {
		return request.Request{}, fmt.Errorf("filter: %w", err)
	}
	req, err := request.New(query, filter, b.sort, b.limit)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidCondition, err)
	}
	return req, nil
}

func optional(c *Condition) (condition.Condition, error) {
	if c == nil {
		return nil, nil
	}
	return c.build()
}
