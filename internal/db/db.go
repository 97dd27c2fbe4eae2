package db

import "context"

// Engine is the inverted-index facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Engine interface {
	Pinger
	IndexManager
	Writer
	Searcher
	Close() error
}

// Pinger checks engine availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexManager provides index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DocCount(ctx context.Context) (uint64, error)
}

// Writer maintains documents addressed by term.
type Writer interface {
	// Upsert replaces whatever document the term addresses.
	Upsert(ctx context.Context, term Term, doc *Document) error
	// DeleteTerm removes every document carrying the term.
	DeleteTerm(ctx context.Context, term Term) error
	// DeleteQuery removes every document matching q and reports how many were removed.
	DeleteQuery(ctx context.Context, q Query) (int, error)
}

// Searcher runs ranked searches.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
}

// IDField is the pseudo-field whose terms address a single document.
const IDField = "_id"

// Term addresses documents: a term on IDField names one document, a term on any
// other keyword field names every document carrying that token.
type Term struct {
	Field string
	Text  string
}

func (t Term) String() string { return t.Field + ":" + t.Text }
