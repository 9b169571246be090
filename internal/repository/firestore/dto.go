package firestore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Document field names. Width, height, labels, colors and the association
// live under "metadata", matching the layout the upload service writes.
const (
	fieldID          = "imageId"
	fieldBucket      = "bucket"
	fieldPath        = "imagePath"
	fieldName        = "imageName"
	fieldURL         = "imageUrl"
	fieldDescription = "imageDescription"
	fieldValid       = "valid"
	fieldPublished   = "published"
	fieldCreated     = "timeCreated"
	fieldUpdated     = "timeUpdated"
	fieldMetadata    = "metadata"
	metaWidth        = "width"
	metaHeight       = "height"
	metaLabels       = "labels"
	metaColors       = "color_weights"
	metaCompanyID    = "companyId"
	metaAlbumID      = "albumId"
)

// Vectors are stored as "<kind>_embedding_field" for the base dimension and
// "<kind>_embedding_field_<dim>" otherwise, e.g. image_embedding_field_1408.
const (
	vectorInfix = "_embedding_field"
	baseDim     = 512
)

// docField maps a domain embedding field to its document field name.
func docField(f domimg.EmbeddingField) string {
	kind, dim, err := domimg.ParseField(string(f))
	if err != nil {
		return string(f)
	}
	if dim == baseDim {
		return string(kind) + vectorInfix
	}
	return fmt.Sprintf("%s%s_%d", kind, vectorInfix, dim)
}

// embeddingField is the inverse of docField. ok is false for names that are
// not vector fields.
func embeddingField(name string) (domimg.EmbeddingField, bool) {
	kind, rest, found := strings.Cut(name, vectorInfix)
	if !found {
		return "", false
	}
	dim := baseDim
	if rest != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(rest, "_"))
		if err != nil || !strings.HasPrefix(rest, "_") {
			return "", false
		}
		dim = n
	}
	f := domimg.Field(domimg.Kind(kind), dim)
	if _, _, err := domimg.ParseField(string(f)); err != nil {
		return "", false
	}
	return f, true
}

// patchData converts a patch into a nested map for Set with MergeAll, which
// only touches the leaf fields present in the map.
func patchData(id string, p *domimg.Patch) map[string]any {
	m := map[string]any{fieldID: id}
	meta := map[string]any{}

	putString(m, fieldBucket, p.Bucket)
	putString(m, fieldPath, p.Path)
	putString(m, fieldName, p.Name)
	putString(m, fieldURL, p.URL)
	putString(m, fieldDescription, p.Description)
	if p.Valid != nil {
		m[fieldValid] = *p.Valid
	}
	if p.TimeCreated != nil {
		m[fieldCreated] = p.TimeCreated.UTC()
	}
	if p.TimeUpdated != nil {
		m[fieldUpdated] = p.TimeUpdated.UTC()
	}
	for f, v := range p.Embeddings {
		if len(v) > 0 {
			m[docField(f)] = firestore.Vector32(v)
		}
	}

	if p.Width != nil {
		meta[metaWidth] = *p.Width
	}
	if p.Height != nil {
		meta[metaHeight] = *p.Height
	}
	if len(p.Labels) > 0 {
		meta[metaLabels] = p.Labels
	}
	if len(p.Colors) > 0 {
		colors := make([]map[string]any, len(p.Colors))
		for i, c := range p.Colors {
			colors[i] = map[string]any{"name": c.Name, "shade": c.Shade, "weight": c.Weight}
		}
		meta[metaColors] = colors
	}
	putString(meta, metaCompanyID, p.CompanyID)
	putString(meta, metaAlbumID, p.AlbumID)
	if len(meta) > 0 {
		m[fieldMetadata] = meta
	}
	return m
}

// recordFromData decodes a snapshot's Data() map.
func recordFromData(id string, data map[string]any) domimg.Record {
	rec := domimg.Record{
		ID:          getString(data, fieldID),
		Bucket:      getString(data, fieldBucket),
		Path:        getString(data, fieldPath),
		Name:        getString(data, fieldName),
		URL:         getString(data, fieldURL),
		Description: getString(data, fieldDescription),
		Valid:       getBool(data, fieldValid),
		Published:   getBool(data, fieldPublished),
		TimeCreated: getTime(data, fieldCreated),
		TimeUpdated: getTime(data, fieldUpdated),
	}
	if rec.ID == "" {
		rec.ID = id
	}

	if meta, ok := data[fieldMetadata].(map[string]any); ok {
		rec.Width = getInt(meta, metaWidth)
		rec.Height = getInt(meta, metaHeight)
		rec.CompanyID = getString(meta, metaCompanyID)
		rec.AlbumID = getString(meta, metaAlbumID)
		if labels, ok := meta[metaLabels].([]any); ok {
			for _, l := range labels {
				if s, ok := l.(string); ok {
					rec.Labels = append(rec.Labels, s)
				}
			}
		}
		if colors, ok := meta[metaColors].([]any); ok {
			for _, c := range colors {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				rec.Colors = append(rec.Colors, domimg.ColorWeight{
					Name:   getString(cm, "name"),
					Shade:  getString(cm, "shade"),
					Weight: getFloat(cm, "weight"),
				})
			}
		}
	}

	for name, v := range data {
		field, ok := embeddingField(name)
		if !ok {
			continue
		}
		vec := toVector32(v)
		if len(vec) == 0 {
			continue
		}
		if rec.Embeddings == nil {
			rec.Embeddings = make(map[domimg.EmbeddingField][]float32)
		}
		rec.Embeddings[field] = vec
	}
	return rec
}

func toVector32(v any) []float32 {
	switch t := v.(type) {
	case firestore.Vector32:
		return []float32(t)
	case firestore.Vector64:
		out := make([]float32, len(t))
		for i, f := range t {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(t))
		for _, e := range t {
			if f, ok := e.(float64); ok {
				out = append(out, float32(f))
			}
		}
		return out
	default:
		return nil
	}
}

func putString(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func getInt(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func getFloat(m map[string]any, key string) float64 {
	switch n := m[key].(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func getTime(m map[string]any, key string) time.Time {
	t, _ := m[key].(time.Time)
	return t
}
