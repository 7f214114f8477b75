package model

// Passthrough handles the degenerate single-child node: nothing to
// discriminate, always descend with top confidence.
type Passthrough struct {
	Child string `json:"child"`
}

func (p *Passthrough) Kind() string {
	return KindPassthrough
}

func (p *Passthrough) Predict(vec []float64) (string, float64) {
	return p.Child, 1.0
}

func (p *Passthrough) Labels() []string {
	return []string{p.Child}
}
