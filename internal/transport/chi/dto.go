package chi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/request"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
	indexinguc "github.com/kailas-cloud/rowsearch/internal/usecase/indexing"
)

// ErrorCode is a machine-readable error class.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeValidationFailed   ErrorCode = "validation_failed"
	ErrorCodeStorageUnavailable ErrorCode = "storage_unavailable"
	ErrorCodeIndexEngineError   ErrorCode = "index_engine_error"
	ErrorCodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /v1/search. Conditions use the JSON condition language.
type SearchRequest struct {
	Query  json.RawMessage     `json:"query,omitempty"`
	Filter json.RawMessage     `json:"filter,omitempty"`
	Sort   []request.SortField `json:"sort,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
}

// SearchResultItem is one materialized row. Keys are hex encoded.
type SearchResultItem struct {
	PartitionKey  string         `json:"partition_key"`
	ClusteringKey string         `json:"clustering_key,omitempty"`
	Score         float64        `json:"score"`
	Columns       map[string]any `json:"columns"`
}

// SearchResponse is the body of a search reply. Partial is set when some rows
// could not be read from storage.
type SearchResponse struct {
	Items   []SearchResultItem `json:"items"`
	Total   int                `json:"total"`
	Partial bool               `json:"partial,omitempty"`
}

// MutationRequest is a storage write for one partition. Keys are hex encoded;
// a missing timestamp means now.
type MutationRequest struct {
	PartitionKey    string                  `json:"partition_key"`
	Timestamp       *time.Time              `json:"timestamp,omitempty"`
	Cells           []CellRequest           `json:"cells,omitempty"`
	DeletePartition bool                    `json:"delete_partition,omitempty"`
	RangeTombstones []RangeTombstoneRequest `json:"range_tombstones,omitempty"`
}

// CellRequest is one column write. An empty column writes the row marker.
type CellRequest struct {
	ClusteringKey string     `json:"clustering_key,omitempty"`
	Column        string     `json:"column,omitempty"`
	Value         any        `json:"value,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	TTLSec        int        `json:"ttl_sec,omitempty"`
	Deleted       bool       `json:"deleted,omitempty"`
}

// BoundRequest is one end of a clustering range.
type BoundRequest struct {
	Key       string `json:"key"`
	Inclusive bool   `json:"inclusive"`
}

// RangeTombstoneRequest deletes the rows between two bounds. A missing bound is open.
type RangeTombstoneRequest struct {
	Start *BoundRequest `json:"start,omitempty"`
	End   *BoundRequest `json:"end,omitempty"`
}

// MutationResponse reports how the index followed a mutation.
type MutationResponse struct {
	Outcome  string `json:"outcome"`
	State    string `json:"state"`
	Upserted int    `json:"upserted"`
	Deleted  int    `json:"deleted"`
}

// RebuildResponse summarises a rebuild.
type RebuildResponse struct {
	Partitions int `json:"partitions"`
	Rows       int `json:"rows"`
	Failed     int `json:"failed"`
}

// HealthResponse reports component status.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

func searchRequestFromDTO(req SearchRequest) (request.Request, error) {
	query, err := optionalCondition(req.Query)
	if err != nil {
		return request.Request{}, fmt.Errorf("query: %w", err)
	}
	filter, err := optionalCondition(req.Filter)
	if err != nil {
		return request.Request{}, fmt.Errorf("filter: %w", err)
	}
	if req.Limit < 0 || req.Limit > request.MaxLimit {
		return request.Request{}, fmt.Errorf("limit must be between 1 and %d", request.MaxLimit)
	}
	r, err := request.New(query, filter, req.Sort, req.Limit)
	if err != nil {
		return request.Request{}, fmt.Errorf("build search request: %w", err)
	}
	return r, nil
}

func optionalCondition(raw json.RawMessage) (condition.Condition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	c, err := condition.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse condition: %w", err)
	}
	return c, nil
}

func searchResultToDTO(r *result.ScoredRow) SearchResultItem {
	item := SearchResultItem{
		PartitionKey: r.Row.PartitionKey.String(),
		Score:        r.Score,
		Columns:      r.Row.Columns,
	}
	if r.Row.ClusteringKey != nil {
		item.ClusteringKey = r.Row.ClusteringKey.String()
	}
	if item.Columns == nil {
		item.Columns = map[string]any{}
	}
	return item
}

func mutationFromDTO(req MutationRequest, now time.Time) (*row.Mutation, error) {
	pk, err := row.ParsePartitionKey(req.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition_key: %w", err)
	}

	ts := now
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	m := &row.Mutation{PartitionKey: pk, Timestamp: ts}

	for i, c := range req.Cells {
		cell, err := cellFromDTO(c, ts)
		if err != nil {
			return nil, fmt.Errorf("cells[%d]: %w", i, err)
		}
		m.Cells = append(m.Cells, cell)
	}
	if req.DeletePartition {
		at := ts
		m.PartitionDeletion = &at
	}
	for i, t := range req.RangeTombstones {
		tomb, err := tombstoneFromDTO(t)
		if err != nil {
			return nil, fmt.Errorf("range_tombstones[%d]: %w", i, err)
		}
		m.RangeTombstones = append(m.RangeTombstones, tomb)
	}
	return m, nil
}

func cellFromDTO(c CellRequest, ts time.Time) (row.Cell, error) {
	ck, err := row.ParseClusteringKey(c.ClusteringKey)
	if err != nil {
		return row.Cell{}, fmt.Errorf("clustering_key: %w", err)
	}
	if c.TTLSec < 0 {
		return row.Cell{}, fmt.Errorf("ttl_sec must not be negative")
	}
	cell := row.Cell{Clustering: ck, Column: c.Column, Value: c.Value, Deleted: c.Deleted}
	if c.Timestamp != nil {
		cell.Timestamp = *c.Timestamp
		ts = *c.Timestamp
	}
	if c.Deleted {
		cell.Value = nil
	}
	if c.TTLSec > 0 {
		cell.ExpiresAt = ts.Add(time.Duration(c.TTLSec) * time.Second)
	}
	return cell, nil
}

func tombstoneFromDTO(t RangeTombstoneRequest) (row.RangeTombstone, error) {
	var out row.RangeTombstone
	var err error
	if out.Start, err = boundFromDTO(t.Start); err != nil {
		return out, fmt.Errorf("start: %w", err)
	}
	if out.End, err = boundFromDTO(t.End); err != nil {
		return out, fmt.Errorf("end: %w", err)
	}
	return out, nil
}

func boundFromDTO(b *BoundRequest) (*row.Bound, error) {
	if b == nil {
		return nil, nil
	}
	ck, err := row.ParseClusteringKey(b.Key)
	if err != nil {
		return nil, err
	}
	return &row.Bound{Key: ck, Inclusive: b.Inclusive}, nil
}

func outcomeToDTO(o *indexinguc.Outcome) MutationResponse {
	return MutationResponse{
		Outcome:  o.String(),
		State:    o.Current().String(),
		Upserted: o.Upserted,
		Deleted:  o.Deleted,
	}
}
