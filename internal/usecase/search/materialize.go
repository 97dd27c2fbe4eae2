package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	"github.com/kailas-cloud/rowsearch/internal/domain/search/result"
	"github.com/kailas-cloud/rowsearch/internal/metrics"
)

// Materialization defaults.
const (
	DefaultBatchSize        = 1000
	DefaultMaxParallelReads = 8
)

// Materializer turns search hits into full rows read from storage.
type Materializer struct {
	rows        Rows
	batchSize   int
	maxParallel int
	logger      *zap.Logger
}

// NewMaterializer creates a materializer. logger can be nil.
func NewMaterializer(rows Rows, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{
		rows:        rows,
		batchSize:   DefaultBatchSize,
		maxParallel: DefaultMaxParallelReads,
		logger:      logger,
	}
}

// WithLimits overrides the batch size and the number of concurrent storage reads.
func (m *Materializer) WithLimits(batchSize, maxParallel int) *Materializer {
	if batchSize > 0 {
		m.batchSize = batchSize
	}
	if maxParallel > 0 {
		m.maxParallel = maxParallel
	}
	return m
}

type group struct {
	pk     row.PartitionKey
	keys   []row.ClusteringKey
	scores map[string]float64
}

type batch struct {
	group *group
	keys  []row.ClusteringKey
	rows  []result.ScoredRow
	err   error
}

// Materialize reads the rows behind hits as of now. Hits are grouped by
// partition in encounter order and each partition's keys are read in batches;
// output follows group order, then batch order, then storage row order.
// Rows no longer in storage are dropped. A failed batch is skipped and its
// error returned, joined with the others, next to the rows that were read.
func (m *Materializer) Materialize(ctx context.Context, hits []result.Hit, now time.Time) ([]result.ScoredRow, error) {
	batches := m.plan(groupHits(hits))

	g := new(errgroup.Group)
	g.SetLimit(m.maxParallel)
	for _, b := range batches {
		g.Go(func() error {
			m.read(ctx, b, now)
			return nil
		})
	}
	_ = g.Wait()

	var (
		out  = make([]result.ScoredRow, 0, len(hits))
		errs []error
	)
	for _, b := range batches {
		if b.err != nil {
			errs = append(errs, b.err)
			continue
		}
		out = append(out, b.rows...)
	}
	if dropped := readKeys(batches) - len(out); dropped > 0 {
		metrics.MaterializeDroppedTotal.Add(float64(dropped))
	}
	return out, errors.Join(errs...)
}

func (m *Materializer) plan(groups []*group) []*batch {
	var batches []*batch
	for _, g := range groups {
		for start := 0; start < len(g.keys); start += m.batchSize {
			end := min(start+m.batchSize, len(g.keys))
			batches = append(batches, &batch{group: g, keys: g.keys[start:end]})
		}
	}
	return batches
}

func (m *Materializer) read(ctx context.Context, b *batch, now time.Time) {
	rows, err := m.rows.ReadRows(ctx, b.group.pk, b.keys, now)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageRead) {
			err = fmt.Errorf("%w: %w", domain.ErrStorageRead, err)
		}
		b.err = fmt.Errorf("partition %s: %w", b.group.pk, err)
		metrics.MaterializeBatchErrorsTotal.Inc()
		m.logger.Warn("materialize batch failed",
			zap.Stringer("partition", b.group.pk),
			zap.Int("keys", len(b.keys)),
			zap.Error(err),
		)
		return
	}

	b.rows = make([]result.ScoredRow, 0, len(rows))
	for _, r := range rows {
		score, ok := b.group.scores[string(r.ClusteringKey)]
		if !ok {
			continue
		}
		b.rows = append(b.rows, result.ScoredRow{Row: r, Score: score})
	}
}

func groupHits(hits []result.Hit) []*group {
	var (
		groups []*group
		byPK   = make(map[string]*group)
	)
	for _, h := range hits {
		g, ok := byPK[string(h.PartitionKey())]
		if !ok {
			g = &group{pk: h.PartitionKey(), scores: make(map[string]float64)}
			byPK[string(h.PartitionKey())] = g
			groups = append(groups, g)
		}
		ck := string(h.ClusteringKey())
		if _, seen := g.scores[ck]; seen {
			continue
		}
		g.scores[ck] = h.Score()
		g.keys = append(g.keys, h.ClusteringKey())
	}
	return groups
}

// readKeys counts the keys of the batches that were read successfully.
func readKeys(batches []*batch) int {
	n := 0
	for _, b := range batches {
		if b.err == nil {
			n += len(b.keys)
		}
	}
	return n
}
