package image

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind selects which modality an embedding was computed from.
type Kind string

// Embedding kinds.
const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Kinds lists every embedding kind in a stable order.
var Kinds = []Kind{KindText, KindImage}

// EmbeddingField names one stored vector, e.g. "image_embedding_1408".
type EmbeddingField string

// Field returns the embedding field name for a kind and dimension.
func Field(kind Kind, dim int) EmbeddingField {
	return EmbeddingField(string(kind) + "_embedding_" + strconv.Itoa(dim))
}

// ParseField splits a field name back into kind and dimension.
func ParseField(s string) (Kind, int, error) {
	kind, rest, ok := strings.Cut(s, "_embedding_")
	if !ok {
		return "", 0, fmt.Errorf("embedding field %q: missing _embedding_ infix", s)
	}
	k := Kind(kind)
	if k != KindText && k != KindImage {
		return "", 0, fmt.Errorf("embedding field %q: unknown kind %q", s, kind)
	}
	dim, err := strconv.Atoi(rest)
	if err != nil || dim <= 0 {
		return "", 0, fmt.Errorf("embedding field %q: invalid dimension %q", s, rest)
	}
	return k, dim, nil
}

// ColorWeight is one dominant color of an image.
type ColorWeight struct {
	Name   string  `json:"name"`
	Shade  string  `json:"shade"`
	Weight float64 `json:"weight"`
}

// Association links an image to its owning company and album.
type Association struct {
	CompanyID string `json:"company_id"`
	AlbumID   string `json:"album_id"`
}

// Record is an image document with its derived attributes.
// Published is owned by an external workflow and never written here.
type Record struct {
	ID          string
	Bucket      string
	Path        string
	Name        string
	URL         string
	Width       int
	Height      int
	Description string
	Labels      []string
	Colors      []ColorWeight
	Embeddings  map[EmbeddingField][]float32
	Valid       bool
	Published   bool
	CompanyID   string
	AlbumID     string
	TimeCreated time.Time
	TimeUpdated time.Time
}

// Ref returns the location handed to annotation providers.
func (r *Record) Ref() Ref {
	return Ref{Bucket: r.Bucket, Path: r.Path, URL: r.URL}
}

// Vector returns the stored vector for a field, or nil.
func (r *Record) Vector(f EmbeddingField) []float32 {
	if r.Embeddings == nil {
		return nil
	}
	return r.Embeddings[f]
}

// HasVector reports whether the field holds a non-empty vector.
func (r *Record) HasVector(f EmbeddingField) bool {
	return len(r.Vector(f)) > 0
}

// EmbeddingText is the text the text embedding is computed from:
// the description followed by the comma-joined labels.
func (r *Record) EmbeddingText() string {
	return EmbeddingText(r.Description, r.Labels)
}

// EmbeddingText joins a description and labels into embedding input.
func EmbeddingText(description string, labels []string) string {
	return strings.TrimSpace(description + " " + strings.Join(labels, ", "))
}

// Ref locates an image for a provider call.
type Ref struct {
	Bucket string
	Path   string
	URL    string
}

// URI returns the URL if set, otherwise a gs:// URI built from bucket and path.
func (r Ref) URI() string {
	if r.URL != "" {
		return r.URL
	}
	if r.Bucket == "" {
		return r.Path
	}
	return "gs://" + r.Bucket + "/" + strings.TrimPrefix(r.Path, "/")
}

// MIMEType guesses the content type from the path extension.
func (r Ref) MIMEType() string {
	p := strings.ToLower(r.Path)
	if p == "" {
		p = strings.ToLower(r.URL)
	}
	switch {
	case strings.HasSuffix(p, ".png"):
		return "image/png"
	case strings.HasSuffix(p, ".webp"):
		return "image/webp"
	case strings.HasSuffix(p, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// Neighbor is one nearest-neighbor hit. For dot product Distance holds the
// similarity (higher is closer); for cosine and euclidean lower is closer.
type Neighbor struct {
	Record   Record
	Distance float64
}
