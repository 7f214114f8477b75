// Serialized form of a trained hierarchy: tree shape, per-node
// models, per-node thresholds, feature width and format version, all
// in one sqlite file. Written exactly once per training run, read
// many times, never mutated.

package hierdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yumyai/hiertax/pkg/model"
	"github.com/yumyai/hiertax/pkg/taxonomy"
)

// FormatVersion is bumped whenever the schema or model payloads
// change shape. Load refuses anything else.
const FormatVersion = "1"

// Defining possible error
var (
	ErrIncompatibleDatabase = errors.New("incompatible database")
	ErrCorruptDatabase      = errors.New("corrupt database")
	ErrWidthMismatch        = errors.New("feature vector width mismatch")
)

// Database is the immutable closure of everything classification
// needs. Models and Thresholds are keyed by node id; leaves carry
// neither.
type Database struct {
	ID        string
	Version   string
	Width     int
	CreatedAt time.Time
	// StateMask is opaque encoder metadata (which alignment states
	// were kept). The core only stores and returns it; the encoder on
	// both sides of the boundary must agree on it.
	StateMask  string
	Tree       *taxonomy.Tree
	Models     map[int]model.Classifier
	Thresholds map[int]float64
}

// New stamps a fresh identity on a trained hierarchy. Retraining
// always produces a new ID.
func New(tree *taxonomy.Tree, models map[int]model.Classifier, thresholds map[int]float64, width int) *Database {
	return &Database{
		ID:         uuid.New().String(),
		Version:    FormatVersion,
		Width:      width,
		CreatedAt:  time.Now().UTC(),
		Tree:       tree,
		Models:     models,
		Thresholds: thresholds,
	}
}

// Validate checks the structural invariants shared by Save and Load:
// every internal node carries a model and a threshold, and nothing
// dangles.
func (d *Database) Validate() error {

	if d.Width <= 0 {
		return fmt.Errorf("%w: feature width %d", ErrCorruptDatabase, d.Width)
	}
	if d.Tree == nil || len(d.Tree.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrCorruptDatabase)
	}

	for id := range d.Tree.Nodes {
		if d.Tree.IsLeaf(id) {
			continue
		}
		if _, ok := d.Models[id]; !ok {
			return fmt.Errorf("%w: internal node %q has no classifier",
				ErrCorruptDatabase, d.nodeName(id))
		}
		if _, ok := d.Thresholds[id]; !ok {
			return fmt.Errorf("%w: internal node %q has no threshold",
				ErrCorruptDatabase, d.nodeName(id))
		}
	}

	for id, m := range d.Models {
		if id < 0 || id >= len(d.Tree.Nodes) || d.Tree.IsLeaf(id) {
			return fmt.Errorf("%w: classifier stored for invalid node %d",
				ErrCorruptDatabase, id)
		}

		// A model fitted for a different vector width cannot be applied
		// to this database's queries.
		if wc, ok := m.(interface{ InputWidth() int }); ok && wc.InputWidth() != d.Width {
			return fmt.Errorf("%w: classifier at node %q expects width %d, database width is %d",
				ErrCorruptDatabase, d.nodeName(id), wc.InputWidth(), d.Width)
		}

		// Every label the model can emit must be a real child, or a
		// descent would walk off the tree.
		children := make(map[string]bool, len(d.Tree.Nodes[id].Children))
		for _, childID := range d.Tree.Nodes[id].Children {
			children[d.Tree.Nodes[childID].Label] = true
		}
		for _, label := range m.Labels() {
			if !children[label] {
				return fmt.Errorf("%w: classifier at node %q predicts %q, not a child",
					ErrCorruptDatabase, d.nodeName(id), label)
			}
		}
	}

	return nil
}

func (d *Database) nodeName(id int) string {
	if id == taxonomy.RootID {
		return "(root)"
	}
	return d.Tree.Nodes[id].Label
}
