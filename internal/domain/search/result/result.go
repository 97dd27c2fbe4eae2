package result

import "github.com/kailas-cloud/rowsearch/internal/domain/row"

// Hit is one ranked search match, addressed by its row keys.
type Hit struct {
	partitionKey  row.PartitionKey
	clusteringKey row.ClusteringKey
	score         float64
}

// NewHit creates a search hit.
func NewHit(pk row.PartitionKey, ck row.ClusteringKey, score float64) Hit {
	return Hit{partitionKey: pk, clusteringKey: ck, score: score}
}

// PartitionKey returns the partition the hit belongs to.
func (h Hit) PartitionKey() row.PartitionKey { return h.partitionKey }

// ClusteringKey returns the row within the partition, nil for non-wide tables.
func (h Hit) ClusteringKey() row.ClusteringKey { return h.clusteringKey }

// Score returns the relevance score.
func (h Hit) Score() float64 { return h.score }

// ScoredRow is a materialized row paired with the score of its hit.
type ScoredRow struct {
	Row   row.Row
	Score float64
}
