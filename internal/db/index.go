package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DistanceMetric is the FT vector distance. It is fixed per attribute at
// index creation, so each measure a caller wants needs its own attribute.
type DistanceMetric string

const (
	// DistanceIP is inner product, reported as 1 - dot.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance, 1 - cos.
	DistanceCosine DistanceMetric = "COSINE"
	// DistanceL2 is squared Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
)

// VectorAlgorithm selects the FT vector index type.
type VectorAlgorithm string

const (
	// VectorHNSW is the approximate graph index.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat is exact brute force; fine for small collections.
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates the attribute kinds image indexes use.
type IndexFieldType int

const (
	// IndexFieldTag is an exact-match TAG attribute.
	IndexFieldTag IndexFieldType = iota
	// IndexFieldNumeric is a NUMERIC attribute.
	IndexFieldNumeric
	// IndexFieldVector is a VECTOR attribute.
	IndexFieldVector
)

// VectorParams configures a VECTOR attribute. Zero M and EFConstruction
// keep the server defaults.
type VectorParams struct {
	Algo           VectorAlgorithm
	Dim            int
	Distance       DistanceMetric
	M              int
	EFConstruction int
}

// IndexField is one attribute of a JSON index. Path is a JSONPath into the
// document, Alias the attribute name queries refer to.
type IndexField struct {
	Path   string
	Alias  string
	Type   IndexFieldType
	Vector VectorParams
}

func (f *IndexField) attribute() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Path
}

// IndexDefinition describes an FT index over JSON documents under Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the definition renders to a valid FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !validIdent(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Path == "" {
			return fmt.Errorf("field %d: path is required", i)
		}
		if f.Alias != "" && !validIdent(f.Alias) {
			return fmt.Errorf("field alias %q contains invalid characters", f.Alias)
		}
		attr := f.attribute()
		if seen[attr] {
			return fmt.Errorf("duplicate field name %q", attr)
		}
		seen[attr] = true

		if f.Type == IndexFieldVector {
			if f.Vector.Dim <= 0 {
				return fmt.Errorf("vector field %q requires positive DIM", attr)
			}
			if f.Vector.M < 0 || f.Vector.EFConstruction < 0 {
				return fmt.Errorf("vector field %q: negative HNSW parameter", attr)
			}
		}
	}
	return nil
}

// Args renders the FT.CREATE arguments, command name excluded.
func (idx *IndexDefinition) Args() []string {
	args := []string{idx.Name, "ON", "JSON"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		args = append(args, idx.Fields[i].args()...)
	}
	return args
}

// String is the FT.CREATE command line, for logs.
func (idx *IndexDefinition) String() string {
	return "FT.CREATE " + strings.Join(idx.Args(), " ")
}

func (f *IndexField) args() []string {
	args := []string{f.Path}
	if f.Alias != "" {
		args = append(args, "AS", f.Alias)
	}
	switch f.Type {
	case IndexFieldTag:
		return append(args, "TAG")
	case IndexFieldNumeric:
		return append(args, "NUMERIC")
	}

	v := f.Vector
	if v.Algo == "" {
		v.Algo = VectorHNSW
	}
	if v.Distance == "" {
		v.Distance = DistanceIP
	}
	attrs := []string{"TYPE", "FLOAT32", "DIM", strconv.Itoa(v.Dim), "DISTANCE_METRIC", string(v.Distance)}
	if v.Algo == VectorHNSW {
		if v.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(v.M))
		}
		if v.EFConstruction > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.EFConstruction))
		}
	}
	args = append(args, "VECTOR", string(v.Algo), strconv.Itoa(len(attrs)))
	return append(args, attrs...)
}

// validIdent matches [a-zA-Z0-9_:-]+.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == ':' || r == '-':
		default:
			return false
		}
	}
	return true
}
