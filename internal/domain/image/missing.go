package image

// Missing is the enrichment work a record still needs.
type Missing struct {
	Description bool
	Labels      bool
	Colors      bool
	// Vectors lists, per dimension, the kinds whose field is absent.
	Vectors map[int][]Kind
}

// MissingFields determines which derived fields of r are absent for the
// configured embedding dimensions.
func MissingFields(r *Record, dims []int) Missing {
	m := Missing{
		Description: r.Description == "",
		Labels:      len(r.Labels) == 0,
		Colors:      len(r.Colors) == 0,
	}
	for _, dim := range dims {
		for _, kind := range Kinds {
			if r.HasVector(Field(kind, dim)) {
				continue
			}
			if m.Vectors == nil {
				m.Vectors = make(map[int][]Kind)
			}
			m.Vectors[dim] = append(m.Vectors[dim], kind)
		}
	}
	return m
}

// NeedsAnnotation reports whether any annotator output is missing.
func (m Missing) NeedsAnnotation() bool {
	return m.Description || m.Labels || m.Colors
}

// NeedsKind reports whether the given kind is missing at dim.
func (m Missing) NeedsKind(dim int, kind Kind) bool {
	for _, k := range m.Vectors[dim] {
		if k == kind {
			return true
		}
	}
	return false
}

// Complete reports whether nothing is missing.
func (m Missing) Complete() bool {
	return !m.NeedsAnnotation() && len(m.Vectors) == 0
}
