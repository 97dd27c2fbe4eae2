package rowsearch

import "github.com/kailas-cloud/rowsearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrUnmappedColumn             = domain.ErrUnmappedColumn
	ErrUnsupportedColumnType      = domain.ErrUnsupportedColumnType
	ErrUnsupportedConditionOnType = domain.ErrUnsupportedConditionOnType
	ErrInvalidCondition           = domain.ErrInvalidCondition
	ErrInvalidSchema              = domain.ErrInvalidSchema
	ErrInvalidMutation            = domain.ErrInvalidMutation
	ErrStorageRead                = domain.ErrStorageRead
	ErrIndexEngine                = domain.ErrIndexEngine
)

// IsRetryable reports whether err came from storage or the index engine
// and may succeed on retry.
func IsRetryable(err error) bool { return domain.IsRetryable(err) }
