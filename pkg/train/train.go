// Training builds one classifier and one calibrated threshold per
// internal taxonomy node. Nodes are independent, so they train on a
// worker pool; each worker writes only its own node's slot.

package train

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yumyai/hiertax/logger"
	"github.com/yumyai/hiertax/pkg/config"
	"github.com/yumyai/hiertax/pkg/hierdb"
	"github.com/yumyai/hiertax/pkg/model"
	"github.com/yumyai/hiertax/pkg/taxonomy"
)

// Defining possible error
var (
	ErrInsufficientTrainingData  = errors.New("insufficient training data")
	ErrDegenerateClassAssignment = errors.New("degenerate class assignment")
)

// Train fits the whole hierarchy and returns a ready-to-save
// database. Identical input and config always give identical
// accept/reject behavior.
func Train(tree *taxonomy.Tree, vectors [][]float64, cfg config.Config) (*hierdb.Database, error) {

	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no feature vectors", ErrInsufficientTrainingData)
	}

	width := len(vectors[0])
	for i, v := range vectors {
		if len(v) != width {
			return nil, fmt.Errorf("%w: vector %d has width %d, database width is %d",
				hierdb.ErrWidthMismatch, i, len(v), width)
		}
	}
	if n := len(tree.Nodes[taxonomy.RootID].Seqs); n > len(vectors) {
		return nil, fmt.Errorf("%w: tree indexes %d sequences but only %d vectors given",
			ErrInsufficientTrainingData, n, len(vectors))
	}

	start := time.Now()
	internal := tree.Internal()

	// Per-node output slots; no slot is shared between workers.
	models := make([]model.Classifier, len(tree.Nodes))
	thresholds := make([]float64, len(tree.Nodes))

	err := runPool(internal, cfg.Workers, cfg.Progress, func(id int) error {
		m, threshold, err := trainNode(tree, id, vectors, cfg)
		if err != nil {
			return err
		}
		models[id] = m
		thresholds[id] = threshold
		return nil
	})
	if err != nil {
		return nil, err
	}

	modelMap := make(map[int]model.Classifier, len(internal))
	thresholdMap := make(map[int]float64, len(internal))
	for _, id := range internal {
		modelMap[id] = models[id]
		thresholdMap[id] = thresholds[id]
	}

	db := hierdb.New(tree, modelMap, thresholdMap, width)

	logger.Info("Trained hierarchical database",
		zap.String("database_id", db.ID),
		zap.Int("nodes", len(tree.Nodes)),
		zap.Int("classifiers", len(modelMap)),
		zap.Duration("elapsed", time.Since(start)))

	return db, nil
}

// trainNode calibrates a threshold over held-out folds, then fits the
// final model on everything the node has.
func trainNode(tree *taxonomy.Tree, id int, vectors [][]float64, cfg config.Config) (model.Classifier, float64, error) {

	node := tree.Nodes[id]
	nodePath := tree.PathTo(id).String()
	if nodePath == "" {
		nodePath = "(root)"
	}

	// A single child needs no discrimination: descend unconditionally
	// with top confidence.
	if len(node.Children) == 1 {
		child := tree.Nodes[node.Children[0]].Label
		logger.Debug("Single-child node, using passthrough",
			zap.String("node", nodePath), zap.String("child", child))
		return &model.Passthrough{Child: child}, 1.0, nil
	}

	var (
		vecs   [][]float64
		labels []string
	)
	for _, childID := range node.Children {
		child := tree.Nodes[childID]
		if len(child.Seqs) == 0 {
			return nil, 0, fmt.Errorf("%w: node %q has no vectors for child %q",
				ErrInsufficientTrainingData, nodePath, child.Label)
		}
		for _, seq := range child.Seqs {
			if seq < 0 || seq >= len(vectors) {
				return nil, 0, fmt.Errorf("%w: node %q references sequence %d, only %d vectors given",
					ErrInsufficientTrainingData, nodePath, seq, len(vectors))
			}
			vecs = append(vecs, vectors[seq])
			labels = append(labels, child.Label)
		}
	}

	calls, err := crossValidate(vecs, labels, cfg, int64(id))
	if err != nil {
		return nil, 0, fmt.Errorf("node %q: %w", nodePath, err)
	}

	threshold, fallback := chooseThreshold(calls, cfg.FACeiling)
	if fallback {
		logger.Warn("No threshold satisfies the false-accept ceiling, node made strict",
			zap.String("node", nodePath),
			zap.Float64("threshold", threshold),
			zap.Float64("ceiling", cfg.FACeiling))
	} else {
		logCalibration(nodePath, calls, threshold)
	}

	m, err := model.TrainSoftmax(vecs, labels, cfg.Epochs, cfg.LearnRate)
	if err != nil {
		return nil, 0, fmt.Errorf("node %q: %w", nodePath, err)
	}

	return m, threshold, nil
}
