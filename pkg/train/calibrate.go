package train

import (
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/yumyai/hiertax/logger"
	"github.com/yumyai/hiertax/pkg/config"
	"github.com/yumyai/hiertax/pkg/model"
)

// fallbackEpsilon lifts the fallback threshold just past the highest
// observed confidence, so only a strictly better call ever descends.
const fallbackEpsilon = 1e-6

// heldOutCall is one cross-validated classification of a held-out
// training vector.
type heldOutCall struct {
	Score   float64
	Correct bool
}

// crossValidate deals each child's vectors round-robin into k folds
// (leave-one-out falls out naturally for children with fewer than k
// examples), then trains on k-1 folds and scores the held-out fold.
// Fold assignment is shuffled with a seed derived from the config and
// the node, so a rerun reproduces the same folds.
func crossValidate(vecs [][]float64, labels []string, cfg config.Config, nodeSeed int64) ([]heldOutCall, error) {

	folds := cfg.Folds
	if folds < 2 {
		folds = 2
	}

	byLabel := make(map[string][]int)
	var order []string
	for i, l := range labels {
		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], i)
	}
	sort.Strings(order)

	rng := rand.New(rand.NewSource(cfg.Seed + nodeSeed))

	foldOf := make([]int, len(vecs))
	for _, label := range order {
		idxs := byLabel[label]
		if len(idxs) < 2 {
			return nil, fmt.Errorf("%w: child %q has %d example(s), need at least 2",
				ErrDegenerateClassAssignment, label, len(idxs))
		}
		rng.Shuffle(len(idxs), func(a, b int) {
			idxs[a], idxs[b] = idxs[b], idxs[a]
		})
		for j, idx := range idxs {
			foldOf[idx] = j % folds
		}
	}

	var calls []heldOutCall
	for f := 0; f < folds; f++ {

		var (
			trainVecs   [][]float64
			trainLabels []string
			heldOut     []int
		)
		for i := range vecs {
			if foldOf[i] == f {
				heldOut = append(heldOut, i)
			} else {
				trainVecs = append(trainVecs, vecs[i])
				trainLabels = append(trainLabels, labels[i])
			}
		}
		if len(heldOut) == 0 {
			continue
		}

		m, err := model.TrainSoftmax(trainVecs, trainLabels, cfg.Epochs, cfg.LearnRate)
		if err != nil {
			return nil, err
		}

		for _, i := range heldOut {
			child, score := m.Predict(vecs[i])
			calls = append(calls, heldOutCall{
				Score:   score,
				Correct: child == labels[i],
			})
		}
	}

	return calls, nil
}

// chooseThreshold scans the distinct held-out scores from highest to
// lowest and keeps lowering the threshold while the false-accept rate
// among calls at or above it stays within the ceiling. When even the
// highest score violates the ceiling, the node is made strict:
// max observed score plus epsilon, reported as a fallback.
func chooseThreshold(calls []heldOutCall, ceiling float64) (float64, bool) {

	if len(calls) == 0 {
		return fallbackEpsilon, true
	}

	candidates := make([]float64, 0, len(calls))
	seen := make(map[float64]bool)
	for _, c := range calls {
		if !seen[c.Score] {
			seen[c.Score] = true
			candidates = append(candidates, c.Score)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(candidates)))

	chosen := 0.0
	found := false
	for _, t := range candidates {
		var accepted, wrong float64
		for _, c := range calls {
			if c.Score >= t {
				accepted++
				if !c.Correct {
					wrong++
				}
			}
		}
		if wrong/accepted > ceiling {
			// Lowering the threshold further only admits this call
			// too; stop at the last safe candidate.
			break
		}
		chosen = t
		found = true
	}

	if !found {
		return candidates[0] + fallbackEpsilon, true
	}
	return chosen, false
}

// falseAcceptRate is the share of wrong calls among held-out calls
// scoring at or above the threshold.
func falseAcceptRate(calls []heldOutCall, threshold float64) float64 {
	var accepted, wrong float64
	for _, c := range calls {
		if c.Score >= threshold {
			accepted++
			if !c.Correct {
				wrong++
			}
		}
	}
	if accepted == 0 {
		return 0
	}
	return wrong / accepted
}

func logCalibration(nodePath string, calls []heldOutCall, threshold float64) {

	scores := make([]float64, len(calls))
	correct := 0
	for i, c := range calls {
		scores[i] = c.Score
		if c.Correct {
			correct++
		}
	}

	logger.Debug("Calibrated node threshold",
		zap.String("node", nodePath),
		zap.Float64("threshold", threshold),
		zap.Float64("held_out_accuracy", float64(correct)/float64(len(calls))),
		zap.Float64("mean_score", stat.Mean(scores, nil)),
		zap.Float64("stddev_score", stat.StdDev(scores, nil)),
		zap.Float64("false_accept_rate", falseAcceptRate(calls, threshold)))
}
