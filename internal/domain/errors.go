package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnmappedColumn signals a column that has no mapping in the schema.
	ErrUnmappedColumn = errors.New("unmapped column")
	// ErrUnsupportedColumnType signals a mapping that cannot index the column's storage type.
	ErrUnsupportedColumnType = errors.New("unsupported column type")
	// ErrUnsupportedConditionOnType signals a condition that the field's mapping cannot serve.
	ErrUnsupportedConditionOnType = errors.New("unsupported condition on type")
	// ErrInvalidCondition signals a malformed condition tree.
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrInvalidSchema signals an invalid schema definition.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrInvalidMutation signals a malformed mutation notification.
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrStorageRead signals a failed read from the row store.
	ErrStorageRead = errors.New("storage read failed")
	// ErrIndexEngine signals a failed call into the index engine.
	ErrIndexEngine = errors.New("index engine failed")
)

// ColumnError wraps ErrUnmappedColumn with the offending column name.
type ColumnError struct {
	Column string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnmappedColumn.Error(), e.Column)
}

func (e *ColumnError) Unwrap() error { return ErrUnmappedColumn }

// ColumnTypeError wraps ErrUnsupportedColumnType with the rejected combination.
type ColumnTypeError struct {
	Column  string
	Mapping string
	Type    string
}

func (e *ColumnTypeError) Error() string {
	return fmt.Sprintf("%s: %s mapping of column %q does not accept %s",
		ErrUnsupportedColumnType.Error(), e.Mapping, e.Column, e.Type)
}

func (e *ColumnTypeError) Unwrap() error { return ErrUnsupportedColumnType }

// ConditionError wraps ErrUnsupportedConditionOnType with the condition and field.
type ConditionError struct {
	Condition string
	Field     string
	Mapping   string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("%s: %s condition on %s field %q",
		ErrUnsupportedConditionOnType.Error(), e.Condition, e.Mapping, e.Field)
}

func (e *ConditionError) Unwrap() error { return ErrUnsupportedConditionOnType }

// NewUnmappedColumn creates an unmapped column error.
func NewUnmappedColumn(column string) error {
	return &ColumnError{Column: column}
}

// NewUnsupportedCondition creates an unsupported condition error.
func NewUnsupportedCondition(condition, field, mapping string) error {
	return &ConditionError{Condition: condition, Field: field, Mapping: mapping}
}

// IsRetryable reports whether err came from a collaborator and may succeed on retry.
// Validation failures are permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageRead) || errors.Is(err, ErrIndexEngine)
}
