package db

import "errors"

// Sentinel errors for engine operations.
var (
	ErrIndexNotFound    = errors.New("db: index not found")
	ErrIndexExists      = errors.New("db: index already exists")
	ErrUnsupportedQuery = errors.New("db: unsupported query")
)

// Op names recorded on engine errors for diagnostics.
const (
	OpCreateIndex = "create_index"
	OpPing        = "ping"
	OpCount       = "count"
	OpUpsert      = "upsert"
	OpDeleteTerm  = "delete_term"
	OpDeleteQuery = "delete_query"
	OpSearch      = "search"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
