package result

import (
	"testing"

	"github.com/kailas-cloud/rowsearch/internal/domain/row"
)

func TestNewHit(t *testing.T) {
	h := NewHit(row.PartitionKey("p1"), row.ClusteringKey("c1"), 0.95)

	if string(h.PartitionKey()) != "p1" {
		t.Errorf("PartitionKey() = %q", h.PartitionKey())
	}
	if string(h.ClusteringKey()) != "c1" {
		t.Errorf("ClusteringKey() = %q", h.ClusteringKey())
	}
	if h.Score() != 0.95 {
		t.Errorf("Score() = %f", h.Score())
	}
}

func TestNewHit_NoClustering(t *testing.T) {
	h := NewHit(row.PartitionKey("p1"), nil, 1)
	if h.ClusteringKey() != nil {
		t.Errorf("ClusteringKey() = %v, want nil", h.ClusteringKey())
	}
}
