package taxonomy

import (
	"errors"
	"fmt"
)

// Defining possible error
var ErrMalformedTaxonomy = errors.New("malformed taxonomy")

// RootID indexes the unlabeled root in every Tree.
const RootID = 0

// Node is one entry in the tree arena. Links are indices into
// Tree.Nodes, so a loaded tree can be shared read-only between
// goroutines with no pointer fixup.
type Node struct {
	Label    string
	Parent   int // -1 for the root
	Children []int
	Seqs     []int // indices of training records routed through here
}

type Tree struct {
	Nodes []Node
}

// BuildTree walks every record's path from the root, creating child
// nodes as needed and appending the record index to each node passed.
// A label seen under two different parents, or an empty path, is a
// MalformedTaxonomy error.
func BuildTree(records []Record) (*Tree, error) {

	t := &Tree{
		Nodes: []Node{{Parent: -1}},
	}

	// Rank labels are globally unique-parented, so one lookup table
	// covers the whole tree.
	byLabel := make(map[string]int)

	for i, rec := range records {
		if len(rec.Path) == 0 {
			return nil, fmt.Errorf("%w: sequence %q has an empty rank path",
				ErrMalformedTaxonomy, rec.SeqID)
		}

		cur := RootID
		t.Nodes[cur].Seqs = append(t.Nodes[cur].Seqs, i)

		for _, label := range rec.Path {
			id, seen := byLabel[label]
			if seen {
				if t.Nodes[id].Parent != cur {
					return nil, fmt.Errorf(
						"%w: sequence %q puts label %q under %q, already seen under %q",
						ErrMalformedTaxonomy, rec.SeqID, label,
						t.nodeName(cur), t.nodeName(t.Nodes[id].Parent))
				}
			} else {
				id = len(t.Nodes)
				t.Nodes = append(t.Nodes, Node{Label: label, Parent: cur})
				t.Nodes[cur].Children = append(t.Nodes[cur].Children, id)
				byLabel[label] = id
			}

			t.Nodes[id].Seqs = append(t.Nodes[id].Seqs, i)
			cur = id
		}
	}

	return t, nil
}

func (t *Tree) IsLeaf(id int) bool {
	return len(t.Nodes[id].Children) == 0
}

// Internal lists the ids of every node with at least one child, root
// included. These are the nodes that carry a classifier.
func (t *Tree) Internal() []int {
	var ids []int
	for id := range t.Nodes {
		if !t.IsLeaf(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// PathTo returns the rank labels from the root down to id. The root
// itself has no label and contributes nothing.
func (t *Tree) PathTo(id int) Path {
	var rev []string
	for id != RootID {
		rev = append(rev, t.Nodes[id].Label)
		id = t.Nodes[id].Parent
	}
	p := make(Path, len(rev))
	for i := range rev {
		p[i] = rev[len(rev)-1-i]
	}
	return p
}

// Depth is the longest root-to-leaf label count; it bounds the number
// of classifier invocations any descent can make.
func (t *Tree) Depth() int {
	depths := make([]int, len(t.Nodes))
	max := 0
	// Children always follow their parent in the arena, so one pass
	// suffices.
	for id := 1; id < len(t.Nodes); id++ {
		depths[id] = depths[t.Nodes[id].Parent] + 1
		if depths[id] > max {
			max = depths[id]
		}
	}
	return max
}

func (t *Tree) nodeName(id int) string {
	if id < 0 || id == RootID {
		return "(root)"
	}
	return t.Nodes[id].Label
}
