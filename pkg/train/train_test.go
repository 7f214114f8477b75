package train

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yumyai/hiertax/pkg/classify"
	"github.com/yumyai/hiertax/pkg/config"
	"github.com/yumyai/hiertax/pkg/hierdb"
	"github.com/yumyai/hiertax/pkg/model"
	"github.com/yumyai/hiertax/pkg/taxonomy"
)

// Four perfectly separable genus clusters under two phyla: each genus
// owns one axis of a width-4 vector.
func scenarioA(t *testing.T) (*taxonomy.Tree, [][]float64) {
	t.Helper()

	genera := []struct {
		path string
		axis int
	}{
		{"Bacteria;Firmicutes;Bacillus", 0},
		{"Bacteria;Firmicutes;Clostridium", 1},
		{"Bacteria;Proteobacteria;Escherichia", 2},
		{"Bacteria;Proteobacteria;Vibrio", 3},
	}

	var (
		records []taxonomy.Record
		vectors [][]float64
	)
	for _, g := range genera {
		for j := 0; j < 4; j++ {
			v := make([]float64, 4)
			v[g.axis] = 4.0
			v[(g.axis+1+j)%4] += 0.05 * float64(j)
			records = append(records, taxonomy.Record{
				SeqID: g.path,
				Path:  taxonomy.ParsePath(g.path),
			})
			vectors = append(vectors, v)
		}
	}

	tree, err := taxonomy.BuildTree(records)
	require.NoError(t, err)
	return tree, vectors
}

func exemplar(axis int) []float64 {
	v := make([]float64, 4)
	v[axis] = 4.0
	v[(axis+2)%4] = 0.02
	return v
}

func TestTrainScenarioA(t *testing.T) {

	tree, vectors := scenarioA(t)
	cfg := config.Default()

	db, err := Train(tree, vectors, cfg)
	require.NoError(t, err)
	require.NoError(t, db.Validate())
	require.Equal(t, 4, db.Width)

	// Every discriminating node calibrates strictly below certainty;
	// only the degenerate single-child root sits at 1.0.
	for id, threshold := range db.Thresholds {
		if _, isPass := db.Models[id].(*model.Passthrough); isPass {
			require.Equal(t, 1.0, threshold)
			continue
		}
		require.Less(t, threshold, 1.0, "node %d", id)
		require.Greater(t, threshold, 0.0, "node %d", id)
	}

	// A held-out exemplar of each genus comes back Accepted with the
	// exact path.
	wants := []struct {
		axis int
		path string
	}{
		{0, "Bacteria;Firmicutes;Bacillus"},
		{1, "Bacteria;Firmicutes;Clostridium"},
		{2, "Bacteria;Proteobacteria;Escherichia"},
		{3, "Bacteria;Proteobacteria;Vibrio"},
	}
	for _, w := range wants {
		result, err := classify.Classify(db, "exemplar", exemplar(w.axis))
		require.NoError(t, err)
		require.Equal(t, classify.ReachedLeaf, result.Reason)
		require.Equal(t, w.path, result.Path.String())
	}
}

func TestTrainNoiseStopsShallow(t *testing.T) {

	tree, vectors := scenarioA(t)
	db, err := Train(tree, vectors, config.Default())
	require.NoError(t, err)

	// The midpoint of all four clusters should not produce a
	// confident deep call.
	noise := []float64{1, 1, 1, 1}
	result, err := classify.Classify(db, "noise", noise)
	require.NoError(t, err)
	require.Equal(t, classify.BelowThreshold, result.Reason)
	require.LessOrEqual(t, len(result.Path), 1,
		"noise classified to %q", result.Path.String())
}

func TestTrainDeterministic(t *testing.T) {

	tree, vectors := scenarioA(t)
	cfg := config.Default()
	cfg.Workers = 4

	a, err := Train(tree, vectors, cfg)
	require.NoError(t, err)
	b, err := Train(tree, vectors, cfg)
	require.NoError(t, err)

	require.Equal(t, a.Thresholds, b.Thresholds)
	require.NotEqual(t, a.ID, b.ID, "retraining must mint a new database identity")

	for _, q := range [][]float64{exemplar(0), exemplar(1), {1, 1, 1, 1}} {
		ra, err := classify.Classify(a, "q", q)
		require.NoError(t, err)
		rb, err := classify.Classify(b, "q", q)
		require.NoError(t, err)
		require.Equal(t, ra.Path, rb.Path)
		require.Equal(t, ra.Scores, rb.Scores)
		require.Equal(t, ra.Reason, rb.Reason)
	}
}

func TestTrainWidthMismatch(t *testing.T) {

	tree, vectors := scenarioA(t)
	vectors[3] = []float64{1, 2} // one narrow vector poisons the run

	_, err := Train(tree, vectors, config.Default())
	require.ErrorIs(t, err, hierdb.ErrWidthMismatch)
}

func TestTrainInsufficientData(t *testing.T) {

	// A hand-built tree whose child indexes no vectors signals a
	// taxonomy/encoding mismatch upstream.
	tree := &taxonomy.Tree{Nodes: []taxonomy.Node{
		{Parent: -1, Children: []int{1, 2}, Seqs: []int{0, 1}},
		{Label: "Firmicutes", Parent: 0, Seqs: []int{0, 1}},
		{Label: "Proteobacteria", Parent: 0},
	}}
	vectors := [][]float64{{1, 0}, {0, 1}}

	_, err := Train(tree, vectors, config.Default())
	require.ErrorIs(t, err, ErrInsufficientTrainingData)
	require.ErrorContains(t, err, "Proteobacteria")
}

func TestTrainDegenerateClass(t *testing.T) {

	records := []taxonomy.Record{
		{SeqID: "s1", Path: taxonomy.Path{"Firmicutes", "Bacillus"}},
		{SeqID: "s2", Path: taxonomy.Path{"Firmicutes", "Bacillus"}},
		{SeqID: "s3", Path: taxonomy.Path{"Firmicutes", "Clostridium"}},
	}
	vectors := [][]float64{{3, 0}, {3.1, 0}, {0, 3}}

	tree, err := taxonomy.BuildTree(records)
	require.NoError(t, err)

	_, err = Train(tree, vectors, config.Default())
	require.ErrorIs(t, err, ErrDegenerateClassAssignment)
	require.ErrorContains(t, err, "Clostridium")
}

func TestTrainErrorIsFatal(t *testing.T) {

	// Even with healthy siblings, one bad node fails the whole run.
	_, err := Train(&taxonomy.Tree{Nodes: []taxonomy.Node{{Parent: -1}}}, nil, config.Default())
	require.ErrorIs(t, err, ErrInsufficientTrainingData)
}
