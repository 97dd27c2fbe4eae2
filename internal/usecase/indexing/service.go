package indexing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/metrics"
)

// DefaultBatchSize bounds how many clustering keys are read back per storage call.
const DefaultBatchSize = 1000

// Service keeps the search index in step with storage mutations.
type Service struct {
	index     Index
	rows      Rows
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an indexing service. logger can be nil.
func New(index Index, rows Rows, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:     index,
		rows:      rows,
		batchSize: DefaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// WithBatchSize overrides the read-back batch size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Index applies one mutation notification to the index. The returned outcome
// carries the visited states, also on failure.
func (s *Service) Index(ctx context.Context, m *row.Mutation) (Outcome, error) {
	start := time.Now()
	out := Outcome{Path: []State{Received}}

	if err := m.Validate(); err != nil {
		return out, fmt.Errorf("%w: %w", domain.ErrInvalidMutation, err)
	}

	branch := Classify(m)
	if err := s.step(m.PartitionKey, &out, Classified); err != nil {
		return out, err
	}
	if err := s.step(m.PartitionKey, &out, branch); err != nil {
		return out, err
	}

	var err error
	switch branch {
	case Upserted:
		err = s.upsert(ctx, m, &out)
	case RangeDeleted:
		err = s.deleteRanges(ctx, m.PartitionKey, m.StampedTombstones(), &out)
	case PartitionDeleted:
		err = s.deletePartition(ctx, m.PartitionKey)
	case NoOp:
	}

	s.observe(branch, start, err)
	if err != nil {
		s.logger.Warn("index mutation failed",
			zap.Stringer("partition", m.PartitionKey),
			zap.Stringer("outcome", &out),
			zap.Error(err),
		)
		return out, err
	}
	if err := s.step(m.PartitionKey, &out, Done); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) step(pk row.PartitionKey, out *Outcome, next State) error {
	from := out.Current()
	if err := out.advance(next); err != nil {
		return err
	}
	s.logger.Debug("index transition",
		zap.Stringer("partition", pk),
		zap.Stringer("from", from),
		zap.Stringer("to", next),
	)
	return nil
}

// upsert re-reads every touched row at the mutation timestamp and replaces its
// document. Deletions carried by the same mutation are applied first; touched
// keys that read back empty are removed. Batches are independent: a failed
// batch is recorded and the rest still run.
func (s *Service) upsert(ctx context.Context, m *row.Mutation, out *Outcome) error {
	var errs []error

	if m.PartitionDeletion != nil {
		if err := s.deletePartition(ctx, m.PartitionKey); err != nil {
			errs = append(errs, err)
		}
	}
	if len(m.RangeTombstones) > 0 {
		if err := s.deleteRanges(ctx, m.PartitionKey, m.StampedTombstones(), out); err != nil {
			errs = append(errs, err)
		}
	}

	keys := m.TouchedKeys()
	for start := 0; start < len(keys); start += s.batchSize {
		end := min(start+s.batchSize, len(keys))
		if err := s.upsertBatch(ctx, m.PartitionKey, keys[start:end], m.Timestamp, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) upsertBatch(
	ctx context.Context, pk row.PartitionKey, keys []row.ClusteringKey, at time.Time, out *Outcome,
) error {
	rows, err := s.rows.ReadRows(ctx, pk, keys, at)
	if err != nil {
		return fmt.Errorf("read %d rows of partition %s: %w", len(keys), pk, err)
	}

	var errs []error
	found := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		found[string(r.ClusteringKey)] = struct{}{}
		if err := s.index.Upsert(ctx, r); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Upserted++
		metrics.IndexRowsTotal.WithLabelValues("upsert").Inc()
	}

	for _, ck := range keys {
		if _, ok := found[string(ck)]; ok {
			continue
		}
		if err := s.index.DeleteRow(ctx, pk, ck); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Deleted++
		metrics.IndexRowsTotal.WithLabelValues("delete").Inc()
	}
	return errors.Join(errs...)
}

func (s *Service) deleteRanges(ctx context.Context, pk row.PartitionKey, ts []row.RangeTombstone, out *Outcome) error {
	var errs []error
	for _, t := range ts {
		n, err := s.index.DeleteRange(ctx, pk, t)
		out.Deleted += n
		metrics.IndexRowsTotal.WithLabelValues("delete").Add(float64(n))
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) deletePartition(ctx context.Context, pk row.PartitionKey) error {
	return s.index.DeletePartition(ctx, pk)
}

func (s *Service) observe(branch State, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IndexOperationsTotal.WithLabelValues(branch.String(), status).Inc()
	metrics.IndexOperationDuration.WithLabelValues(branch.String()).Observe(time.Since(start).Seconds())
}

// Delete removes every document of a partition.
func (s *Service) Delete(ctx context.Context, pk row.PartitionKey) error {
	if len(pk) == 0 {
		return fmt.Errorf("%w: partition key is required", domain.ErrInvalidMutation)
	}
	if err := s.deletePartition(ctx, pk); err != nil {
		return err
	}
	s.logger.Debug("partition removed from index", zap.Stringer("partition", pk))
	return nil
}

// RebuildStats summarises a rebuild.
type RebuildStats struct {
	Partitions int
	Rows       int
	Failed     int
}

// Rebuild re-indexes every partition from a storage scan in token order.
// Partitions that fail are counted and reported; the scan continues.
func (s *Service) Rebuild(ctx context.Context) (RebuildStats, error) {
	var stats RebuildStats

	keys, err := s.rows.Partitions(ctx)
	if err != nil {
		return stats, fmt.Errorf("list partitions: %w", err)
	}

	var errs []error
	now := s.now()
	for _, pk := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.rebuildPartition(ctx, pk, now)
		stats.Rows += n
		if err != nil {
			stats.Failed++
			errs = append(errs, err)
			continue
		}
		stats.Partitions++
	}

	s.logger.Info("index rebuilt",
		zap.Int("partitions", stats.Partitions),
		zap.Int("rows", stats.Rows),
		zap.Int("failed", stats.Failed),
	)
	return stats, errors.Join(errs...)
}

func (s *Service) rebuildPartition(ctx context.Context, pk row.PartitionKey, now time.Time) (int, error) {
	rows, err := s.rows.ReadPartition(ctx, pk, now)
	if err != nil {
		return 0, fmt.Errorf("read partition %s: %w", pk, err)
	}
	if err := s.index.DeletePartition(ctx, pk); err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, r := range rows {
		if err := s.index.Upsert(ctx, r); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
		metrics.IndexRowsTotal.WithLabelValues("upsert").Inc()
	}
	return n, errors.Join(errs...)
}
