package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var ErrNoTrainingVectors = errors.New("no training vectors")

// Softmax is a multinomial logistic regression over a node's
// children. Weights hold one row per class, with the bias term in the
// trailing column. Training is full-batch gradient descent from a
// zero start, so identical inputs always give identical weights.
type Softmax struct {
	Classes []string    `json:"classes"`
	Weights [][]float64 `json:"weights"`
	Width   int         `json:"width"`
}

func (s *Softmax) Kind() string {
	return KindSoftmax
}

// TrainSoftmax fits a model on vectors of uniform width with one
// class label each.
func TrainSoftmax(vecs [][]float64, labels []string, epochs int, rate float64) (*Softmax, error) {

	if len(vecs) == 0 {
		return nil, ErrNoTrainingVectors
	}
	if len(vecs) != len(labels) {
		return nil, fmt.Errorf("have %d vectors but %d labels", len(vecs), len(labels))
	}

	width := len(vecs[0])
	for i, v := range vecs {
		if len(v) != width {
			return nil, fmt.Errorf("vector %d has width %d, expected %d", i, len(v), width)
		}
	}

	// Sorted class order keeps the fit independent of input order.
	classIdx := make(map[string]int)
	var classes []string
	for _, l := range labels {
		if _, ok := classIdx[l]; !ok {
			classIdx[l] = 0
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	for i, c := range classes {
		classIdx[c] = i
	}

	s := &Softmax{
		Classes: classes,
		Weights: make([][]float64, len(classes)),
		Width:   width,
	}
	for c := range s.Weights {
		s.Weights[c] = make([]float64, width+1)
	}

	grad := make([][]float64, len(classes))
	for c := range grad {
		grad[c] = make([]float64, width+1)
	}

	n := float64(len(vecs))
	probs := make([]float64, len(classes))

	for epoch := 0; epoch < epochs; epoch++ {
		for c := range grad {
			for j := range grad[c] {
				grad[c][j] = 0
			}
		}

		for i, x := range vecs {
			s.logits(x, probs)
			lse := floats.LogSumExp(probs)
			for c := range probs {
				probs[c] = math.Exp(probs[c] - lse)
			}
			probs[classIdx[labels[i]]] -= 1

			for c := range grad {
				floats.AddScaled(grad[c][:width], probs[c], x)
				grad[c][width] += probs[c]
			}
		}

		for c := range s.Weights {
			floats.AddScaled(s.Weights[c], -rate/n, grad[c])
		}
	}

	return s, nil
}

// Predict returns the highest-probability class and its probability.
func (s *Softmax) Predict(vec []float64) (string, float64) {

	probs := make([]float64, len(s.Classes))
	s.logits(vec, probs)

	lse := floats.LogSumExp(probs)
	best := 0
	for c := range probs {
		probs[c] = math.Exp(probs[c] - lse)
		if probs[c] > probs[best] {
			best = c
		}
	}

	return s.Classes[best], probs[best]
}

func (s *Softmax) Labels() []string {
	return s.Classes
}

// InputWidth is the vector width the weights were fitted for.
func (s *Softmax) InputWidth() int {
	return s.Width
}

// validate rejects payloads whose shape would make Predict index or
// dot-product out of bounds.
func (s *Softmax) validate() error {
	if s.Width <= 0 {
		return fmt.Errorf("softmax has width %d", s.Width)
	}
	if len(s.Classes) == 0 {
		return errors.New("softmax has no classes")
	}
	if len(s.Weights) != len(s.Classes) {
		return fmt.Errorf("softmax has %d classes but %d weight rows",
			len(s.Classes), len(s.Weights))
	}
	for c, w := range s.Weights {
		if len(w) != s.Width+1 {
			return fmt.Errorf("softmax weight row %d has length %d, want %d",
				c, len(w), s.Width+1)
		}
	}
	return nil
}

func (s *Softmax) logits(x []float64, out []float64) {
	for c, w := range s.Weights {
		out[c] = floats.Dot(w[:s.Width], x) + w[s.Width]
	}
}
