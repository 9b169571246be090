package image

import (
	"fmt"
	"strings"
)

// Distance is the measure used for nearest-neighbor queries.
type Distance string

// Supported distance measures.
const (
	DotProduct Distance = "dot_product"
	Cosine     Distance = "cosine"
	Euclidean  Distance = "euclidean"
)

// Distances lists every supported measure.
var Distances = []Distance{DotProduct, Cosine, Euclidean}

// ParseDistance accepts the lower-case names and the upper-case spellings
// used by Firestore (DOT_PRODUCT, COSINE, EUCLIDEAN).
func ParseDistance(s string) (Distance, error) {
	switch d := Distance(strings.ToLower(strings.TrimSpace(s))); d {
	case DotProduct, Cosine, Euclidean:
		return d, nil
	case "":
		return DotProduct, nil
	default:
		return "", fmt.Errorf("unknown distance measure %q", s)
	}
}

// HigherIsCloser reports whether larger values mean nearer neighbors.
func (d Distance) HigherIsCloser() bool {
	return d == DotProduct
}
