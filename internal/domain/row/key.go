// Package row holds the wide-row storage model: keys, raw cells, logical rows and mutations.
package row

import (
	"bytes"
	"encoding/hex"

	"github.com/spaolacci/murmur3"
)

// PartitionKey is the opaque, byte-ordered identifier of a storage partition.
type PartitionKey []byte

// ParsePartitionKey decodes the lower-case hex form produced by String.
func ParsePartitionKey(s string) (PartitionKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return PartitionKey(b), nil
}

// String returns the lower-case hex encoding of the key.
func (k PartitionKey) String() string { return hex.EncodeToString(k) }

// Token returns the Murmur3 partitioner token that orders partitions on the ring.
func (k PartitionKey) Token() int64 {
	h1, _ := murmur3.Sum128(k)
	return int64(h1)
}

// Equal reports whether two partition keys are identical.
func (k PartitionKey) Equal(o PartitionKey) bool { return bytes.Equal(k, o) }

// ClusteringKey identifies a logical row inside a partition. nil means the table is not wide.
type ClusteringKey []byte

// ParseClusteringKey decodes the lower-case hex form produced by String.
func ParseClusteringKey(s string) (ClusteringKey, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ClusteringKey(b), nil
}

// String returns the lower-case hex encoding of the key.
func (k ClusteringKey) String() string { return hex.EncodeToString(k) }

// Compare orders clustering keys bytewise.
func (k ClusteringKey) Compare(o ClusteringKey) int { return bytes.Compare(k, o) }

// Bound is one end of a clustering-key interval.
type Bound struct {
	Key       ClusteringKey
	Inclusive bool
}

// Slice is an inclusive clustering-key interval. A nil end is unbounded.
type Slice struct {
	Start ClusteringKey
	End   ClusteringKey
}

// Contains reports whether ck lies within the slice.
func (s Slice) Contains(ck ClusteringKey) bool {
	if s.Start != nil && ck.Compare(s.Start) < 0 {
		return false
	}
	if s.End != nil && ck.Compare(s.End) > 0 {
		return false
	}
	return true
}

// Point returns the slice selecting exactly one clustering key.
func Point(ck ClusteringKey) Slice { return Slice{Start: ck, End: ck} }

// Whole returns the slice selecting every row of a partition.
func Whole() Slice { return Slice{} }
