// Rank paths as they arrive from taxonomy tables: semicolon-delimited,
// shallow to deep, "unclassified" cutting the path short.

package taxonomy

import "strings"

// Unclassified terminates a rank path; everything after it is ignored.
const Unclassified = "unclassified"

// Path is an ordered list of rank labels, shallowest first.
type Path []string

// ParsePath splits a semicolon-delimited rank string. Blank ranks and
// everything from "unclassified" onward are dropped.
func ParsePath(s string) Path {
	var p Path
	for _, raw := range strings.Split(s, ";") {
		label := strings.TrimSpace(raw)
		if label == "" || strings.EqualFold(label, Unclassified) {
			break
		}
		p = append(p, label)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, ";")
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Record pairs one training sequence with its rank path. The feature
// vector travels separately, matched by slice position.
type Record struct {
	SeqID string
	Path  Path
}
