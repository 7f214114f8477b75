// Per-node classifiers. The hierarchy logic only ever sees the
// Classifier interface; concrete models register a kind string so the
// database layer can round-trip them as JSON payloads.

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownModelKind = errors.New("unknown model kind")

// Classifier maps a feature vector to the immediate child to descend
// into, plus a confidence in [0,1]. Labels lists every child the
// model can emit, so a database can be checked against its tree.
type Classifier interface {
	Kind() string
	Predict(vec []float64) (child string, score float64)
	Labels() []string
}

const (
	KindSoftmax     = "softmax"
	KindPassthrough = "passthrough"
)

// Marshal encodes a trained classifier for storage.
func Marshal(c Classifier) (kind string, payload []byte, err error) {
	payload, err = json.Marshal(c)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s model: %w", c.Kind(), err)
	}
	return c.Kind(), payload, nil
}

// Unmarshal restores a classifier stored by Marshal.
func Unmarshal(kind string, payload []byte) (Classifier, error) {
	switch kind {
	case KindSoftmax:
		var s Softmax
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("unmarshal %s model: %w", kind, err)
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("unmarshal %s model: %w", kind, err)
		}
		return &s, nil
	case KindPassthrough:
		var p Passthrough
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s model: %w", kind, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelKind, kind)
	}
}
