// Package moderation holds safe-search likelihoods and the publish gate
// derived from them.
package moderation

import (
	"fmt"
	"strings"
)

// Likelihood is an ordered moderation confidence tier.
type Likelihood int

// Likelihood tiers, lowest to highest.
const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

var likelihoodNames = [...]string{
	Unknown:      "UNKNOWN",
	VeryUnlikely: "VERY_UNLIKELY",
	Unlikely:     "UNLIKELY",
	Possible:     "POSSIBLE",
	Likely:       "LIKELY",
	VeryLikely:   "VERY_LIKELY",
}

func (l Likelihood) String() string {
	if l < Unknown || l > VeryLikely {
		return fmt.Sprintf("Likelihood(%d)", int(l))
	}
	return likelihoodNames[l]
}

// ParseLikelihood accepts the tier names in any case, with spaces or
// underscores. Empty input is Unknown.
func ParseLikelihood(s string) (Likelihood, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	if norm == "" {
		return Unknown, nil
	}
	for i, name := range likelihoodNames {
		if name == norm {
			return Likelihood(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown likelihood %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Likelihood) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unrecognized names decode as Unknown.
func (l *Likelihood) UnmarshalText(b []byte) error {
	v, err := ParseLikelihood(string(b))
	if err != nil {
		*l = Unknown
		return nil //nolint:nilerr // providers occasionally invent tiers; treat as unknown
	}
	*l = v
	return nil
}

// Category is a moderation dimension.
type Category string

// Moderation categories.
const (
	Adult    Category = "adult"
	Spoof    Category = "spoof"
	Medical  Category = "medical"
	Violence Category = "violence"
	Racy     Category = "racy"
)

// Categories lists every category the gate inspects.
var Categories = []Category{Adult, Spoof, Medical, Violence, Racy}

// Scores maps each category to its likelihood. Absent categories are Unknown.
type Scores map[Category]Likelihood

// Get returns the likelihood for c, Unknown when absent.
func (s Scores) Get(c Category) Likelihood {
	return s[c]
}

// ComputeValid is the publish gate: false iff any category is VeryLikely.
func ComputeValid(s Scores) bool {
	for _, c := range Categories {
		if s.Get(c) == VeryLikely {
			return false
		}
	}
	return true
}
