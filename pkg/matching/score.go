package matching

import (
	"github.com/agnivade/levenshtein"
)

// Weights holds the hybrid score coefficients. They are tunable
// configuration, calibrated against labeled match sets, not constants.
type Weights struct {
	Vector float64
	Name   float64
	Meta   float64
}

// DefaultWeights returns the shipped calibration.
func DefaultWeights() Weights {
	return Weights{Vector: 0.55, Name: 0.30, Meta: 0.15}
}

// NameRatio returns a similarity ratio in [0,1] between two names based on
// edit distance over their normalized forms. Identical names score 1.
func NameRatio(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	ratio := 1 - float64(dist)/float64(longest)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// BestNameScore returns the best fuzzy-match ratio of the query against the
// primary name and every alias.
func BestNameScore(query, primaryName string, aliases []string) float64 {
	best := NameRatio(query, primaryName)
	for _, alias := range aliases {
		if s := NameRatio(query, alias); s > best {
			best = s
		}
	}
	return best
}

// MetaScore grants partial credit for agreement on auxiliary attributes.
// Absence on either side contributes zero rather than a penalty: most list
// records carry incomplete birth data and we must not punish that.
func MetaScore(queryBirthDate, candidateBirthDate string) float64 {
	if queryBirthDate == "" || candidateBirthDate == "" {
		return 0
	}
	if queryBirthDate == candidateBirthDate {
		return 1
	}
	// Year-only agreement (ISO dates share the first 4 characters).
	if len(queryBirthDate) >= 4 && len(candidateBirthDate) >= 4 &&
		queryBirthDate[:4] == candidateBirthDate[:4] {
		return 0.5
	}
	return 0
}

// HybridScore blends the three signals into one ranking score. An exact
// identifier match is surfaced separately in the breakdown and deliberately
// not blended here: it is an independent signal for the caller.
func HybridScore(w Weights, vectorScore, nameScore, metaScore float64) float64 {
	total := w.Vector + w.Name + w.Meta
	if total <= 0 {
		return 0
	}
	return (w.Vector*vectorScore + w.Name*nameScore + w.Meta*metaScore) / total
}
