package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/metrics"
	"github.com/kailas-cloud/imagedex/internal/transport/jsonout"
)

// annotationSchema constrains the model to the annotation document.
var annotationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description": {Type: genai.TypeString},
		"labels":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"colors": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":   {Type: genai.TypeString},
					"shade":  {Type: genai.TypeString},
					"weight": {Type: genai.TypeNumber},
				},
			},
		},
		"safe_search": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"adult":    likelihoodSchema(),
				"spoof":    likelihoodSchema(),
				"medical":  likelihoodSchema(),
				"violence": likelihoodSchema(),
				"racy":     likelihoodSchema(),
			},
		},
	},
	Required: []string{"description", "labels", "colors", "safe_search"},
}

func likelihoodSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeString,
		Enum: []string{"UNKNOWN", "VERY_UNLIKELY", "UNLIKELY", "POSSIBLE", "LIKELY", "VERY_LIKELY"},
	}
}

// Annotator describes images with a Gemini vision model.
type Annotator struct {
	c *Client
}

// NewAnnotator creates a Gemini annotator.
func NewAnnotator(c *Client) *Annotator {
	return &Annotator{c: c}
}

// Annotate implements domain.Annotator: caption, labels, colors and
// safe-search likelihoods from one GenerateContent call.
func (a *Annotator) Annotate(ctx context.Context, ref image.Ref) (domain.Annotation, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(ref.URI(), ref.MIMEType()),
			genai.NewPartFromText(jsonout.AnnotationPrompt),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   annotationSchema,
		Temperature:      genai.Ptr[float32](0.2),
	}

	start := time.Now()
	resp, err := a.c.genai.Models.GenerateContent(ctx, a.c.model, contents, cfg)
	if err != nil {
		err = mapError(err)
		observe(a.c.model, "annotate", start, err)
		return domain.Annotation{}, err
	}

	if u := resp.UsageMetadata; u != nil {
		metrics.ProviderTokensTotal.WithLabelValues(provider, a.c.model, "prompt").Add(float64(u.PromptTokenCount))
		metrics.ProviderTokensTotal.WithLabelValues(provider, a.c.model, "total").Add(float64(u.TotalTokenCount))
	}

	ann, err := jsonout.DecodeAnnotation(resp.Text())
	if err != nil {
		err = fmt.Errorf("gemini annotation: %w: %w", domain.ErrProviderError, err)
		observe(a.c.model, "annotate", start, err)
		return domain.Annotation{}, err
	}
	observe(a.c.model, "annotate", start, nil)
	return ann, nil
}
