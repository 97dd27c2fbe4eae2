package indexing

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/rowsearch/internal/domain/row"
)

// State is a step of the per-mutation indexing state machine.
type State int

const (
	// Received is the entry state of every mutation.
	Received State = iota
	// Classified means the mutation's shape has been inspected.
	Classified
	// Upserted means the touched rows were re-read and re-indexed.
	Upserted
	// PartitionDeleted means every document of the partition was removed.
	PartitionDeleted
	// RangeDeleted means the documents covered by range tombstones were removed.
	RangeDeleted
	// NoOp means the mutation carried nothing to index.
	NoOp
	// Done is the terminal state of a successful run.
	Done
)

var stateNames = [...]string{"received", "classified", "upserted", "partition_deleted", "range_deleted", "noop", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// transitions lists the legal successors of every state.
var transitions = map[State][]State{
	Received:         {Classified},
	Classified:       {Upserted, PartitionDeleted, RangeDeleted, NoOp},
	Upserted:         {Done},
	PartitionDeleted: {Done},
	RangeDeleted:     {Done},
	NoOp:             {Done},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Classify picks the branch a mutation takes: written cells win over range
// tombstones, which win over a bare partition deletion.
func Classify(m *row.Mutation) State {
	switch {
	case len(m.Cells) > 0:
		return Upserted
	case len(m.RangeTombstones) > 0:
		return RangeDeleted
	case m.PartitionDeletion != nil:
		return PartitionDeleted
	default:
		return NoOp
	}
}

// Outcome records the states a mutation visited and what it changed in the index.
type Outcome struct {
	Path     []State
	Upserted int
	Deleted  int
}

// Branch returns the classified outcome, or Received when classification was not reached.
func (o *Outcome) Branch() State {
	if len(o.Path) < 3 {
		return Received
	}
	return o.Path[2]
}

// Current returns the last visited state.
func (o *Outcome) Current() State {
	if len(o.Path) == 0 {
		return Received
	}
	return o.Path[len(o.Path)-1]
}

func (o *Outcome) String() string {
	parts := make([]string, len(o.Path))
	for i, s := range o.Path {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}

func (o *Outcome) advance(next State) error {
	cur := o.Current()
	if !cur.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s", cur, next)
	}
	o.Path = append(o.Path, next)
	return nil
}
