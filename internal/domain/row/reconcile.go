package row

import (
	"sort"
	"time"
)

// Newer reports whether c supersedes old when both address the same column.
// Later timestamps win; on a tie the deletion wins.
func (c Cell) Newer(old Cell) bool {
	if !c.Timestamp.Equal(old.Timestamp) {
		return c.Timestamp.After(old.Timestamp)
	}
	return c.Deleted && !old.Deleted
}

// Reconcile keeps the newest version of every (clustering key, column) pair and
// turns versions shadowed by the partition deletion or a range tombstone into
// deleted cells. The result is ordered by clustering key, then column, with the
// row marker first.
func Reconcile(cells []Cell, partitionDeletion time.Time, tombstones []RangeTombstone) []Cell {
	type id struct{ ck, col string }

	latest := make(map[id]int, len(cells))
	out := make([]Cell, 0, len(cells))
	for _, c := range cells {
		k := id{string(c.Clustering), c.Column}
		if i, ok := latest[k]; ok {
			if c.Newer(out[i]) {
				out[i] = c
			}
			continue
		}
		latest[k] = len(out)
		out = append(out, c)
	}

	for i := range out {
		if shadowed(out[i], partitionDeletion, tombstones) {
			out[i].Deleted = true
			out[i].Value = nil
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Clustering.Compare(out[j].Clustering); c != 0 {
			return c < 0
		}
		return out[i].Column < out[j].Column
	})
	return out
}

func shadowed(c Cell, partitionDeletion time.Time, tombstones []RangeTombstone) bool {
	if !partitionDeletion.IsZero() && !c.Timestamp.After(partitionDeletion) {
		return true
	}
	for _, t := range tombstones {
		if !c.Timestamp.After(t.DeletedAt) && t.Covers(c.Clustering) {
			return true
		}
	}
	return false
}

// Select keeps the cells whose clustering key falls in any of the slices.
// No slices selects nothing.
func Select(cells []Cell, slices []Slice) []Cell {
	out := cells[:0:0]
	for _, c := range cells {
		for _, s := range slices {
			if s.Contains(c.Clustering) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
