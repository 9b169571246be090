package jsonout

import (
	"strings"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/domain/moderation"
)

// MaxLabels caps the labels kept from one annotation.
const MaxLabels = 20

// AnnotationPrompt asks a vision model for the annotation document.
const AnnotationPrompt = `Describe this image for a photo catalog. Respond with a single JSON object:
{
  "description": "one or two sentences describing the image",
  "labels": ["up to 20 short lowercase labels, most relevant first"],
  "colors": [{"name": "basic color name", "shade": "light|medium|dark", "weight": 0.0}],
  "safe_search": {
    "adult": "VERY_UNLIKELY|UNLIKELY|POSSIBLE|LIKELY|VERY_LIKELY",
    "spoof": "...", "medical": "...", "violence": "...", "racy": "..."
  }
}
List at most 5 dominant colors; weights are the fraction of the image they cover and sum to at most 1.`

type annotationDoc struct {
	Description string              `json:"description"`
	Labels      []string            `json:"labels"`
	Colors      []image.ColorWeight `json:"colors"`
	SafeSearch  moderation.Scores   `json:"safe_search"`
}

// DecodeAnnotation parses and normalizes an annotation document.
func DecodeAnnotation(text string) (domain.Annotation, error) {
	var doc annotationDoc
	if err := Decode(text, &doc); err != nil {
		return domain.Annotation{}, err
	}
	return domain.Annotation{
		Description: strings.TrimSpace(doc.Description),
		Labels:      normalizeLabels(doc.Labels),
		Colors:      normalizeColors(doc.Colors),
		Moderation:  doc.SafeSearch,
	}, nil
}

func normalizeLabels(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, l := range in {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
		if len(out) == MaxLabels {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeColors(in []image.ColorWeight) []image.ColorWeight {
	out := make([]image.ColorWeight, 0, len(in))
	for _, c := range in {
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		c.Shade = strings.ToLower(strings.TrimSpace(c.Shade))
		if c.Name == "" {
			continue
		}
		c.Weight = min(max(c.Weight, 0), 1)
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
