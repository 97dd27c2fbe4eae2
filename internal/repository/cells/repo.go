// Package cells reads logical rows from the wide-row cell store.
package cells

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/repository/document"
)

// store is the consumer interface for the cell store (ISP).
type store interface {
	Apply(ctx context.Context, m *row.Mutation) error
	ReadCells(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error)
	Partitions(ctx context.Context) ([]row.PartitionKey, error)
}

// Repo turns stored cells into logical rows.
type Repo struct {
	store  store
	mapper *document.Mapper
}

// New creates a cell repository.
func New(s store, m *document.Mapper) *Repo {
	return &Repo{store: s, mapper: m}
}

// Apply writes a mutation to the store.
func (r *Repo) Apply(ctx context.Context, m *row.Mutation) error {
	return r.store.Apply(ctx, m)
}

// ReadRows reads the live rows of a partition for the given clustering keys,
// in the store's clustering order. Keys that have no live row are absent.
func (r *Repo) ReadRows(ctx context.Context, pk row.PartitionKey, cks []row.ClusteringKey, now time.Time) ([]row.Row, error) {
	if len(cks) == 0 {
		return nil, nil
	}
	cells, err := r.store.ReadCells(ctx, pk, r.mapper.Slices(cks))
	if err != nil {
		return nil, readError(pk, err)
	}
	return r.mapper.SplitRows(pk, cells, now), nil
}

// ReadPartition reads every live row of a partition.
func (r *Repo) ReadPartition(ctx context.Context, pk row.PartitionKey, now time.Time) ([]row.Row, error) {
	cells, err := r.store.ReadCells(ctx, pk, []row.Slice{row.Whole()})
	if err != nil {
		return nil, readError(pk, err)
	}
	return r.mapper.SplitRows(pk, cells, now), nil
}

// Partitions lists partition keys in token order.
func (r *Repo) Partitions(ctx context.Context) ([]row.PartitionKey, error) {
	pks, err := r.store.Partitions(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrStorageRead) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: list partitions: %w", domain.ErrStorageRead, err)
	}
	return pks, nil
}

// readError marks a failed read as ErrStorageRead unless the store already did.
func readError(pk row.PartitionKey, err error) error {
	if errors.Is(err, domain.ErrStorageRead) {
		return err
	}
	return fmt.Errorf("%w: partition %s: %w", domain.ErrStorageRead, pk, err)
}
