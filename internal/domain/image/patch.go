package image

import (
	"slices"
	"time"
)

// Patch is a field-level partial update. Nil pointers and empty collections
// mean "leave untouched"; present fields overwrite.
type Patch struct {
	Bucket      *string
	Path        *string
	Name        *string
	URL         *string
	Width       *int
	Height      *int
	Description *string
	Labels      []string
	Colors      []ColorWeight
	Embeddings  map[EmbeddingField][]float32
	Valid       *bool
	CompanyID   *string
	AlbumID     *string
	TimeCreated *time.Time
	TimeUpdated *time.Time
}

// IsEmpty reports whether the patch carries any content change.
// TimeUpdated alone does not count.
func (p *Patch) IsEmpty() bool {
	return p.Bucket == nil && p.Path == nil && p.Name == nil && p.URL == nil &&
		p.Width == nil && p.Height == nil &&
		p.Description == nil && len(p.Labels) == 0 && len(p.Colors) == 0 &&
		len(p.Embeddings) == 0 && p.Valid == nil &&
		p.CompanyID == nil && p.AlbumID == nil && p.TimeCreated == nil
}

// SetVector records a vector for a field.
func (p *Patch) SetVector(f EmbeddingField, v []float32) {
	if p.Embeddings == nil {
		p.Embeddings = make(map[EmbeddingField][]float32)
	}
	p.Embeddings[f] = v
}

// Fields lists the names of the fields the patch writes, for logging.
func (p *Patch) Fields() []string {
	var out []string
	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}
	add(p.Bucket != nil, "bucket")
	add(p.Path != nil, "path")
	add(p.Name != nil, "name")
	add(p.URL != nil, "url")
	add(p.Width != nil, "width")
	add(p.Height != nil, "height")
	add(p.Description != nil, "description")
	add(len(p.Labels) > 0, "labels")
	add(len(p.Colors) > 0, "colors")
	vecs := make([]string, 0, len(p.Embeddings))
	for f := range p.Embeddings {
		vecs = append(vecs, string(f))
	}
	slices.Sort(vecs)
	out = append(out, vecs...)
	add(p.Valid != nil, "valid")
	add(p.CompanyID != nil, "company_id")
	add(p.AlbumID != nil, "album_id")
	add(p.TimeCreated != nil, "time_created")
	add(p.TimeUpdated != nil, "time_updated")
	return out
}

// Apply merges the patch into r in place.
func (p *Patch) Apply(r *Record) {
	setString(&r.Bucket, p.Bucket)
	setString(&r.Path, p.Path)
	setString(&r.Name, p.Name)
	setString(&r.URL, p.URL)
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
	setString(&r.Description, p.Description)
	if len(p.Labels) > 0 {
		r.Labels = append([]string(nil), p.Labels...)
	}
	if len(p.Colors) > 0 {
		r.Colors = append([]ColorWeight(nil), p.Colors...)
	}
	for f, v := range p.Embeddings {
		if r.Embeddings == nil {
			r.Embeddings = make(map[EmbeddingField][]float32, len(p.Embeddings))
		}
		r.Embeddings[f] = append([]float32(nil), v...)
	}
	if p.Valid != nil {
		r.Valid = *p.Valid
	}
	setString(&r.CompanyID, p.CompanyID)
	setString(&r.AlbumID, p.AlbumID)
	if p.TimeCreated != nil {
		r.TimeCreated = *p.TimeCreated
	}
	if p.TimeUpdated != nil {
		r.TimeUpdated = *p.TimeUpdated
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
