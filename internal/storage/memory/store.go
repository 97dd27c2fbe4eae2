// Package memory implements an in-process wide-row cell store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
)

type partition struct {
	key        row.PartitionKey
	cells      []row.Cell
	deletedAt  time.Time
	tombstones []row.RangeTombstone
}

// Store keeps every written cell version per partition and reconciles on read.
type Store struct {
	table *cql.Table

	mu         sync.RWMutex
	partitions map[string]*partition
}

// New creates an empty store. A non-nil table coerces written values to their column types.
func New(table *cql.Table) *Store {
	return &Store{table: table, partitions: make(map[string]*partition)}
}

// Apply records a mutation.
func (s *Store) Apply(ctx context.Context, m *row.Mutation) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidMutation, err)
	}
	cells, err := coerce(s.table, m.StampedCells())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := string(m.PartitionKey)
	p, ok := s.partitions[id]
	if !ok {
		p = &partition{key: append(row.PartitionKey(nil), m.PartitionKey...)}
		s.partitions[id] = p
	}
	if m.PartitionDeletion != nil && m.PartitionDeletion.After(p.deletedAt) {
		p.deletedAt = *m.PartitionDeletion
	}
	p.tombstones = append(p.tombstones, m.StampedTombstones()...)
	p.cells = append(p.cells, cells...)
	return nil
}

// ReadCells returns the reconciled cells of a partition that fall within the slices.
// A missing partition reads as empty.
func (s *Store) ReadCells(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageRead, err)
	}

	s.mu.RLock()
	p, ok := s.partitions[string(pk)]
	if !ok {
		s.mu.RUnlock()
		return nil, nil
	}
	cells := append([]row.Cell(nil), p.cells...)
	deletedAt := p.deletedAt
	tombstones := append([]row.RangeTombstone(nil), p.tombstones...)
	s.mu.RUnlock()

	return row.Select(row.Reconcile(cells, deletedAt, tombstones), slices), nil
}

// Partitions lists every known partition key in token order.
func (s *Store) Partitions(ctx context.Context) ([]row.PartitionKey, error) {
	s.mu.RLock()
	keys := make([]row.PartitionKey, 0, len(s.partitions))
	for _, p := range s.partitions {
		keys = append(keys, p.key)
	}
	s.mu.RUnlock()

	SortByToken(keys)
	return keys, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// SortByToken orders partition keys as the Murmur3 partitioner walks the ring.
func SortByToken(keys []row.PartitionKey) {
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := keys[i].Token(), keys[j].Token()
		if ti != tj {
			return ti < tj
		}
		return bytes.Compare(keys[i], keys[j]) < 0
	})
}

func coerce(table *cql.Table, cells []row.Cell) ([]row.Cell, error) {
	if table == nil {
		return cells, nil
	}
	for i, c := range cells {
		if c.IsMarker() {
			continue
		}
		typ, ok := table.Column(c.Column)
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", domain.ErrInvalidMutation, c.Column)
		}
		if c.Deleted {
			cells[i].Value = nil
			continue
		}
		v, err := cql.Coerce(typ, c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", domain.ErrInvalidMutation, c.Column, err)
		}
		cells[i].Value = v
	}
	return cells, nil
}
