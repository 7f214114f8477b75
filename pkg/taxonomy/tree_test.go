package taxonomy

import (
	"errors"
	"testing"
)

func toyRecords() []Record {
	return []Record{
		{SeqID: "s1", Path: ParsePath("Bacteria;Firmicutes;Bacillus")},
		{SeqID: "s2", Path: ParsePath("Bacteria;Firmicutes;Clostridium")},
		{SeqID: "s3", Path: ParsePath("Bacteria;Proteobacteria;Escherichia")},
		{SeqID: "s4", Path: ParsePath("Archaea;Euryarchaeota;Haloferax")},
	}
}

func TestBuildTreeShape(t *testing.T) {

	tree, err := BuildTree(toyRecords())
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}

	// root + 2 domains + 3 phyla + 4 genera
	if len(tree.Nodes) != 10 {
		t.Errorf("expected 10 nodes, got %d", len(tree.Nodes))
	}

	root := tree.Nodes[RootID]
	if len(root.Children) != 2 {
		t.Errorf("expected 2 domains under root, got %d", len(root.Children))
	}
	if len(root.Seqs) != 4 {
		t.Errorf("root should index every record, got %d", len(root.Seqs))
	}

	if tree.Depth() != 3 {
		t.Errorf("expected depth 3, got %d", tree.Depth())
	}

	// Every record index lands on every node along its path.
	for id, node := range tree.Nodes {
		if node.Label == "Firmicutes" {
			if len(node.Seqs) != 2 {
				t.Errorf("Firmicutes should hold 2 records, got %d", len(node.Seqs))
			}
			got := tree.PathTo(id)
			want := Path{"Bacteria", "Firmicutes"}
			if !got.Equal(want) {
				t.Errorf("PathTo = %v, want %v", got, want)
			}
		}
	}
}

func TestBuildTreeInternalNodes(t *testing.T) {

	tree, err := BuildTree(toyRecords())
	if err != nil {
		t.Fatalf("BuildTree failed: %v", err)
	}

	internal := tree.Internal()
	// root, Bacteria, Archaea, Firmicutes, Proteobacteria, Euryarchaeota
	if len(internal) != 6 {
		t.Errorf("expected 6 internal nodes, got %d", len(internal))
	}

	for _, id := range internal {
		if tree.IsLeaf(id) {
			t.Errorf("node %d reported both internal and leaf", id)
		}
	}
}

func TestBuildTreeConflictingParent(t *testing.T) {

	records := []Record{
		{SeqID: "s1", Path: Path{"Bacteria", "Firmicutes"}},
		{SeqID: "s2", Path: Path{"Archaea", "Firmicutes"}},
	}

	_, err := BuildTree(records)
	if !errors.Is(err, ErrMalformedTaxonomy) {
		t.Fatalf("expected ErrMalformedTaxonomy, got %v", err)
	}
}

func TestBuildTreeEmptyPath(t *testing.T) {

	_, err := BuildTree([]Record{{SeqID: "s1", Path: nil}})
	if !errors.Is(err, ErrMalformedTaxonomy) {
		t.Fatalf("expected ErrMalformedTaxonomy, got %v", err)
	}
}

func TestBuildTreeOrderIndependentShape(t *testing.T) {

	recs := toyRecords()
	rev := make([]Record, len(recs))
	for i := range recs {
		rev[len(recs)-1-i] = recs[i]
	}

	a, err := BuildTree(recs)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildTree(rev)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Nodes) != len(b.Nodes) || a.Depth() != b.Depth() {
		t.Errorf("tree shape depends on input order")
	}
}

func TestParsePath(t *testing.T) {

	got := ParsePath("Bacteria; Firmicutes ;unclassified;Bacillus")
	want := Path{"Bacteria", "Firmicutes"}
	if !got.Equal(want) {
		t.Errorf("ParsePath = %v, want %v", got, want)
	}

	if len(ParsePath("")) != 0 {
		t.Errorf("empty string should parse to an empty path")
	}
}
