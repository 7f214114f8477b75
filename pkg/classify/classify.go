// Root-to-leaf descent over a loaded hierarchy. The descent is a
// small explicit state machine: one classifier call per level, gated
// by the node's calibrated threshold, no backtracking.

package classify

import (
	"context"
	"fmt"

	"github.com/yumyai/hiertax/pkg/hierdb"
	"github.com/yumyai/hiertax/pkg/taxonomy"
)

// StopReason explains how a descent ended. Stopping below a threshold
// is a normal outcome, never an error.
type StopReason string

const (
	ReachedLeaf    StopReason = "reached_leaf"
	BelowThreshold StopReason = "below_threshold"
	NoGeneMatch    StopReason = "no_gene_match"
)

type State uint8

const (
	StateAtNode State = iota
	StateAccepted
	StateStopped
)

// Result is one classification record. Scores[i] is the confidence
// that admitted Path[i]; on a threshold stop, the rejected prediction
// is kept alongside for audit.
type Result struct {
	QueryID       string
	Path          taxonomy.Path
	Scores        []float64
	Reason        StopReason
	RejectedLabel string
	RejectedScore float64
}

// Rank is the deepest rank the descent certified, or "" when the
// query stopped at the root.
func (r Result) Rank() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[len(r.Path)-1]
}

// DeepestScore is the confidence of the last accepted level, 0 when
// nothing was accepted. Genome aggregation filters on it.
func (r Result) DeepestScore() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	return r.Scores[len(r.Scores)-1]
}

// Descent walks one query vector down the tree. All mutable state
// lives here, never in the database, so any number of descents may
// run against the same loaded database concurrently.
type Descent struct {
	db  *hierdb.Database
	vec []float64

	state  State
	node   int
	path   taxonomy.Path
	scores []float64
	reason StopReason

	rejectedLabel string
	rejectedScore float64
}

// NewDescent validates the query width up front; a mismatch is a
// fatal input error, not a classification outcome.
func NewDescent(db *hierdb.Database, vec []float64) (*Descent, error) {
	if len(vec) != db.Width {
		return nil, fmt.Errorf("%w: query has width %d, database %s expects %d",
			hierdb.ErrWidthMismatch, len(vec), db.ID, db.Width)
	}
	return &Descent{
		db:    db,
		vec:   vec,
		state: StateAtNode,
		node:  taxonomy.RootID,
	}, nil
}

func (d *Descent) State() State {
	return d.state
}

func (d *Descent) Done() bool {
	return d.state != StateAtNode
}

// Step applies one transition. At a leaf the descent accepts; at an
// internal node it consults the node's classifier and either descends
// (score at or above threshold) or stops where it stands.
func (d *Descent) Step() {

	if d.Done() {
		return
	}

	if d.db.Tree.IsLeaf(d.node) {
		d.state = StateAccepted
		d.reason = ReachedLeaf
		return
	}

	child, score := d.db.Models[d.node].Predict(d.vec)

	if score >= d.db.Thresholds[d.node] {
		d.path = append(d.path, child)
		d.scores = append(d.scores, score)
		d.node = d.childID(child)
		return
	}

	d.state = StateStopped
	d.reason = BelowThreshold
	d.rejectedLabel = child
	d.rejectedScore = score
}

func (d *Descent) childID(label string) int {
	for _, id := range d.db.Tree.Nodes[d.node].Children {
		if d.db.Tree.Nodes[id].Label == label {
			return id
		}
	}
	// Unreachable for a database that passed Validate: every label a
	// model can emit is checked against the node's children there.
	panic(fmt.Sprintf("classifier at node %d predicted unknown child %q", d.node, label))
}

// Result snapshots the finished descent.
func (d *Descent) Result(queryID string) Result {
	return Result{
		QueryID:       queryID,
		Path:          append(taxonomy.Path(nil), d.path...),
		Scores:        append([]float64(nil), d.scores...),
		Reason:        d.reason,
		RejectedLabel: d.rejectedLabel,
		RejectedScore: d.rejectedScore,
	}
}

// Classify runs a descent to termination. The invocation count is
// bounded by tree depth; the loop bound is belt and braces against a
// malformed arena.
func Classify(db *hierdb.Database, queryID string, vec []float64) (Result, error) {

	d, err := NewDescent(db, vec)
	if err != nil {
		return Result{}, err
	}

	maxSteps := db.Tree.Depth() + 1
	for i := 0; i <= maxSteps && !d.Done(); i++ {
		d.Step()
	}
	if !d.Done() {
		return Result{}, fmt.Errorf("%w: descent exceeded tree depth %d",
			hierdb.ErrCorruptDatabase, db.Tree.Depth())
	}

	return d.Result(queryID), nil
}

// Query is one sequence in a batch.
type Query struct {
	ID     string
	Vector []float64
}

// Batch classifies queries in order, honouring cancellation between
// sequences (never mid-descent).
func Batch(ctx context.Context, db *hierdb.Database, queries []Query) ([]Result, error) {

	results := make([]Result, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r, err := Classify(db, q.ID, q.Vector)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Unclassified is the null result for a query no database could
// speak to, e.g. a marker gene absent from a genome.
func Unclassified(queryID string) Result {
	return Result{
		QueryID: queryID,
		Reason:  NoGeneMatch,
	}
}
