package row

import (
	"fmt"
	"time"
)

// Cell is a single raw column value as the storage engine keeps it.
// An empty Column is the row marker written by inserts, which keeps a row alive
// even when all of its regular columns are null.
type Cell struct {
	Clustering ClusteringKey
	Column     string
	Value      any
	Timestamp  time.Time
	ExpiresAt  time.Time // zero means no TTL
	Deleted    bool
}

// IsMarker reports whether the cell is a row marker.
func (c Cell) IsMarker() bool { return c.Column == "" }

// LiveAt reports whether the cell holds a live value as of now.
func (c Cell) LiveAt(now time.Time) bool {
	if c.Deleted {
		return false
	}
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return false
	}
	return true
}

// Row is the logical, timestamp-filtered view of one CQL row.
type Row struct {
	PartitionKey  PartitionKey
	ClusteringKey ClusteringKey
	Columns       map[string]any
}

// RangeTombstone deletes every row whose clustering key lies between Start and End.
// A nil bound is unbounded on that side.
type RangeTombstone struct {
	Start     *Bound
	End       *Bound
	DeletedAt time.Time
}

// Covers reports whether ck falls inside the tombstone's interval.
func (t RangeTombstone) Covers(ck ClusteringKey) bool {
	if t.Start != nil {
		c := ck.Compare(t.Start.Key)
		if c < 0 || (c == 0 && !t.Start.Inclusive) {
			return false
		}
	}
	if t.End != nil {
		c := ck.Compare(t.End.Key)
		if c > 0 || (c == 0 && !t.End.Inclusive) {
			return false
		}
	}
	return true
}

// Mutation is a storage write notification for a single partition.
type Mutation struct {
	PartitionKey      PartitionKey
	Timestamp         time.Time
	Cells             []Cell
	PartitionDeletion *time.Time
	RangeTombstones   []RangeTombstone
}

// Validate checks that the mutation addresses a partition.
func (m *Mutation) Validate() error {
	if len(m.PartitionKey) == 0 {
		return fmt.Errorf("partition key is required")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// TouchedKeys returns the distinct clustering keys written by the mutation in first-seen order.
// A non-wide table yields a single nil key.
func (m *Mutation) TouchedKeys() []ClusteringKey {
	seen := make(map[string]struct{}, len(m.Cells))
	keys := make([]ClusteringKey, 0, len(m.Cells))
	for _, c := range m.Cells {
		id := string(c.Clustering)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, c.Clustering)
	}
	return keys
}

// StampedCells returns the cells with unset timestamps defaulted to the mutation's.
func (m *Mutation) StampedCells() []Cell {
	out := make([]Cell, len(m.Cells))
	for i, c := range m.Cells {
		if c.Timestamp.IsZero() {
			c.Timestamp = m.Timestamp
		}
		out[i] = c
	}
	return out
}

// StampedTombstones returns the range tombstones with unset deletion times defaulted to the mutation's.
func (m *Mutation) StampedTombstones() []RangeTombstone {
	out := make([]RangeTombstone, len(m.RangeTombstones))
	for i, t := range m.RangeTombstones {
		if t.DeletedAt.IsZero() {
			t.DeletedAt = m.Timestamp
		}
		out[i] = t
	}
	return out
}
