package db

// SortField orders hits by an indexed field instead of relevance.
type SortField struct {
	Field      string
	Descending bool
	Numeric    bool
}

// SearchRequest is the input for a ranked search.
type SearchRequest struct {
	Query  Query
	Filter Query // optional, does not contribute to score
	Sort   []SortField
	Limit  int
	Fields []string // stored fields to return with each hit
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// Hit is a single document match.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]string
}
