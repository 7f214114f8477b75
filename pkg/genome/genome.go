// Genome-level classification: each marker gene is classified against
// its own single-gene database, weak calls are filtered by the gene's
// minimum score, and the survivors are merged rank-by-rank into one
// consensus path.

package genome

import (
	"context"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/yumyai/hiertax/logger"
	"github.com/yumyai/hiertax/pkg/classify"
	"github.com/yumyai/hiertax/pkg/hierdb"
	"github.com/yumyai/hiertax/pkg/taxonomy"
)

// Defining possible error
var ErrMissingGeneDatabase = errors.New("gene database missing")

// dbCacheSize bounds how many single-gene databases stay loaded at
// once. Marker sets are small; 16 covers the usual panels.
const dbCacheSize = 16

// GeneRef ties one marker gene to its database file and the minimum
// deepest-call score a classification must reach to count.
type GeneRef struct {
	GeneID   string
	DBPath   string
	MinScore float64
}

// Database is a loaded genome database: the gene table plus an LRU of
// the single-gene databases behind it, and optionally one extra
// database trained on the concatenation of all marker features.
type Database struct {
	genes  map[string]GeneRef
	concat *GeneRef
	cache  *lru.Cache[string, *hierdb.Database]
}

// concatKey is the cache slot for the concatenated-feature database;
// it can never collide with a real gene identifier from a gene table.
const concatKey = "\x00concat"

// Genes lists the expected marker gene identifiers, sorted.
func (g *Database) Genes() []string {
	ids := make([]string, 0, len(g.genes))
	for id := range g.genes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Database) gene(id string) (*hierdb.Database, float64, error) {

	ref, ok := g.genes[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q not in gene table", ErrMissingGeneDatabase, id)
	}

	if db, ok := g.cache.Get(id); ok {
		return db, ref.MinScore, nil
	}

	db, err := hierdb.Load(ref.DBPath)
	if err != nil {
		return nil, 0, fmt.Errorf("gene %q: %w", id, err)
	}
	g.cache.Add(id, db)

	return db, ref.MinScore, nil
}

// Options tune genome aggregation.
type Options struct {
	// IncludeAllGenes disables the per-gene minimum-score filter and
	// feeds every call into the consensus.
	IncludeAllGenes bool
	// ConcatVector, when the database carries a concatenated-feature
	// classifier, is the genome's full concatenated encoding. The
	// resulting call is reported alongside the consensus, never
	// merged into it.
	ConcatVector []float64
}

// GeneCall is one marker gene's classification, kept or filtered.
type GeneCall struct {
	GeneID string
	Result classify.Result
	Kept   bool
}

// Consensus is the merged genome-level call. An empty Path means the
// genome could not be classified at any rank.
type Consensus struct {
	GenomeID string
	Path     taxonomy.Path
	Calls    []GeneCall
	// Concat is the whole-genome concatenated-feature call, when one
	// was requested and available.
	Concat *GeneCall
}

// Unclassified reports whether no rank could be certified.
func (c *Consensus) Unclassified() bool {
	return len(c.Path) == 0
}

// ClassifyGenome classifies every extracted gene present in both the
// genome and the gene table. Genes absent from the genome are simply
// skipped. Zero surviving calls yield an unclassified consensus, not
// an error.
func (g *Database) ClassifyGenome(ctx context.Context, genomeID string, genes map[string][]float64, opts Options) (*Consensus, error) {

	c := &Consensus{GenomeID: genomeID}

	// Sorted order keeps the call list and any logs reproducible.
	ids := make([]string, 0, len(genes))
	for id := range genes {
		if _, ok := g.genes[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var kept []taxonomy.Path
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		db, minScore, err := g.gene(id)
		if err != nil {
			return nil, err
		}

		result, err := classify.Classify(db, genomeID+"/"+id, genes[id])
		if err != nil {
			return nil, err
		}

		call := GeneCall{
			GeneID: id,
			Result: result,
			Kept:   opts.IncludeAllGenes || result.DeepestScore() >= minScore,
		}
		c.Calls = append(c.Calls, call)

		if call.Kept {
			kept = append(kept, result.Path)
		} else {
			logger.Debug("Gene call below minimum score, dropped",
				zap.String("genome", genomeID),
				zap.String("gene", id),
				zap.Float64("score", result.DeepestScore()),
				zap.Float64("min_score", minScore))
		}
	}

	if opts.ConcatVector != nil && g.concat != nil {
		db, err := g.loadConcat()
		if err != nil {
			return nil, err
		}
		result, err := classify.Classify(db, genomeID+"/concat", opts.ConcatVector)
		if err != nil {
			return nil, err
		}
		c.Concat = &GeneCall{
			GeneID: "concat",
			Result: result,
			Kept:   opts.IncludeAllGenes || result.DeepestScore() >= g.concat.MinScore,
		}
	}

	if len(kept) == 0 {
		return c, nil
	}

	c.Path = consensusPath(kept)
	return c, nil
}

func (g *Database) loadConcat() (*hierdb.Database, error) {
	if db, ok := g.cache.Get(concatKey); ok {
		return db, nil
	}
	db, err := hierdb.Load(g.concat.DBPath)
	if err != nil {
		return nil, fmt.Errorf("concatenated database: %w", err)
	}
	g.cache.Add(concatKey, db)
	return db, nil
}

// consensusPath walks rank-by-rank and keeps going only while every
// surviving call agrees; a call abstaining at a shallower rank ends
// the walk there.
func consensusPath(paths []taxonomy.Path) taxonomy.Path {

	var consensus taxonomy.Path
	for rank := 0; ; rank++ {
		var label string
		for _, p := range paths {
			if rank >= len(p) {
				return consensus
			}
			if label == "" {
				label = p[rank]
			} else if p[rank] != label {
				return consensus
			}
		}
		consensus = append(consensus, label)
	}
}
