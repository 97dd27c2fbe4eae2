package request

import (
	"fmt"

	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
)

// Search limits.
const (
	DefaultLimit = 100
	MaxLimit     = 10000
	MaxSortKeys  = 16
)

// SortField orders results by a mapped column.
type SortField struct {
	Field   string `json:"field"`
	Reverse bool   `json:"reverse,omitempty"`
}

// Request is a validated search.
type Request struct {
	query  condition.Condition
	filter condition.Condition
	sort   []SortField
	limit  int
}

// New validates and normalizes search parameters.
// A nil query matches every row; the filter restricts without scoring.
func New(query, filter condition.Condition, sort []SortField, limit int) (Request, error) {
	if len(sort) > MaxSortKeys {
		return Request{}, fmt.Errorf("too many sort fields (max %d)", MaxSortKeys)
	}
	for i, s := range sort {
		if s.Field == "" {
			return Request{}, fmt.Errorf("sort field %d has no name", i)
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Request{
		query:  query,
		filter: filter,
		sort:   append([]SortField(nil), sort...),
		limit:  limit,
	}, nil
}

// Query returns the scoring condition, nil for match-all.
func (r *Request) Query() condition.Condition { return r.query }

// Filter returns the non-scoring condition, nil when absent.
func (r *Request) Filter() condition.Condition { return r.filter }

// Sort returns the sort fields; empty means relevance order.
func (r *Request) Sort() []SortField { return r.sort }

// Limit returns the maximum number of hits to fetch.
func (r *Request) Limit() int { return r.limit }
