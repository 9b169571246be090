package image

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
)

// JSON member names. Vector members use the embedding field name itself
// (e.g. "text_embedding_512") so the FT schema can address them as $.<field>.
const (
	fieldID          = "imageId"
	fieldBucket      = "bucket"
	fieldPath        = "imagePath"
	fieldName        = "imageName"
	fieldURL         = "imageUrl"
	fieldWidth       = "width"
	fieldHeight      = "height"
	fieldDescription = "imageDescription"
	fieldLabels      = "labels"
	fieldColors      = "colorWeights"
	fieldValid       = "valid"
	fieldPublished   = "published"
	fieldCompanyID   = "companyId"
	fieldAlbumID     = "albumId"
	fieldCreated     = "timeCreated"
	fieldUpdated     = "timeUpdated"
	fieldSeq         = "seq"
)

// imageDoc is the stored document minus vectors.
type imageDoc struct {
	ImageID     string               `json:"imageId"`
	Bucket      string               `json:"bucket"`
	Path        string               `json:"imagePath"`
	Name        string               `json:"imageName"`
	URL         string               `json:"imageUrl"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
	Description string               `json:"imageDescription"`
	Labels      []string             `json:"labels"`
	Colors      []domimg.ColorWeight `json:"colorWeights"`
	Valid       bool                 `json:"valid"`
	Published   bool                 `json:"published"`
	CompanyID   string               `json:"companyId"`
	AlbumID     string               `json:"albumId"`
	TimeCreated int64                `json:"timeCreated"` // unix millis
	TimeUpdated int64                `json:"timeUpdated"` // unix millis
}

// patchMembers converts a patch into JSON members. Only present fields appear,
// never as null, so a JSON.MERGE leaves everything else untouched.
func patchMembers(p *domimg.Patch) map[string]any {
	m := make(map[string]any)
	putString(m, fieldBucket, p.Bucket)
	putString(m, fieldPath, p.Path)
	putString(m, fieldName, p.Name)
	putString(m, fieldURL, p.URL)
	if p.Width != nil {
		m[fieldWidth] = *p.Width
	}
	if p.Height != nil {
		m[fieldHeight] = *p.Height
	}
	putString(m, fieldDescription, p.Description)
	if len(p.Labels) > 0 {
		m[fieldLabels] = p.Labels
	}
	if len(p.Colors) > 0 {
		m[fieldColors] = p.Colors
	}
	for f, v := range p.Embeddings {
		if len(v) > 0 {
			m[string(f)] = v
		}
	}
	if p.Valid != nil {
		m[fieldValid] = *p.Valid
	}
	putString(m, fieldCompanyID, p.CompanyID)
	putString(m, fieldAlbumID, p.AlbumID)
	if p.TimeCreated != nil {
		m[fieldCreated] = p.TimeCreated.UnixMilli()
	}
	if p.TimeUpdated != nil {
		m[fieldUpdated] = p.TimeUpdated.UnixMilli()
	}
	return m
}

// newDocMembers builds the full first version of a document from a patch.
// Fields the patch leaves out get their zero value so the document has a
// fixed shape.
func newDocMembers(id string, seq int64, p *domimg.Patch) map[string]any {
	m := map[string]any{
		fieldID:          id,
		fieldBucket:      "",
		fieldPath:        "",
		fieldName:        "",
		fieldURL:         "",
		fieldWidth:       0,
		fieldHeight:      0,
		fieldDescription: "",
		fieldLabels:      []string{},
		fieldColors:      []domimg.ColorWeight{},
		fieldValid:       false,
		fieldPublished:   false,
		fieldCompanyID:   "",
		fieldAlbumID:     "",
		fieldSeq:         seq,
	}
	for k, v := range patchMembers(p) {
		m[k] = v
	}
	return m
}

// parseDoc decodes a stored document. Both the bare object and the
// single-element array returned by JSON.GET with a "$" path are accepted.
func parseDoc(raw []byte) (domimg.Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return domimg.Record{}, fmt.Errorf("unmarshal document array: %w", err)
		}
		if len(arr) == 0 {
			return domimg.Record{}, fmt.Errorf("empty document array")
		}
		raw = arr[0]
	}

	var doc imageDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domimg.Record{}, fmt.Errorf("unmarshal document: %w", err)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return domimg.Record{}, fmt.Errorf("unmarshal members: %w", err)
	}

	rec := domimg.Record{
		ID:          doc.ImageID,
		Bucket:      doc.Bucket,
		Path:        doc.Path,
		Name:        doc.Name,
		URL:         doc.URL,
		Width:       doc.Width,
		Height:      doc.Height,
		Description: doc.Description,
		Labels:      doc.Labels,
		Colors:      doc.Colors,
		Valid:       doc.Valid,
		Published:   doc.Published,
		CompanyID:   doc.CompanyID,
		AlbumID:     doc.AlbumID,
		TimeCreated: fromMillis(doc.TimeCreated),
		TimeUpdated: fromMillis(doc.TimeUpdated),
	}

	for name, v := range members {
		if !strings.Contains(name, "_embedding_") {
			continue
		}
		if _, _, err := domimg.ParseField(name); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(v, &vec); err != nil || len(vec) == 0 {
			continue
		}
		if rec.Embeddings == nil {
			rec.Embeddings = make(map[domimg.EmbeddingField][]float32)
		}
		rec.Embeddings[domimg.EmbeddingField(name)] = vec
	}
	return rec, nil
}

func putString(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
