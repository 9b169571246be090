package openai

import (
	"context"
	"fmt"
	"net/url"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/transport/jsonout"
)

// gcsPublicHost serves bucket objects over HTTPS for models that cannot read gs:// URIs.
const gcsPublicHost = "https://storage.googleapis.com/"

// Annotator describes images with a vision-capable chat model.
type Annotator struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// NewAnnotator creates an OpenAI-compatible annotator.
func NewAnnotator(cfg *Config) *Annotator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Annotator{
		client:   newClient(cfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: providerName(cfg),
		logger:   logger,
	}
}

// Annotate implements domain.Annotator.
func (a *Annotator) Annotate(ctx context.Context, ref image.Ref) (domain.Annotation, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		User:  a.user,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: jsonout.AnnotationPrompt},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: httpURL(ref), Detail: openai.ImageURLDetailLow},
				},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = parseAPIError(err)
		observe(a.provider, a.model, "annotate", start, err)
		return domain.Annotation{}, err
	}
	if len(resp.Choices) == 0 {
		err = fmt.Errorf("empty chat response: %w", domain.ErrProviderError)
		observe(a.provider, a.model, "annotate", start, err)
		return domain.Annotation{}, err
	}

	ann, err := jsonout.DecodeAnnotation(resp.Choices[0].Message.Content)
	if err != nil {
		err = fmt.Errorf("annotation: %w: %w", domain.ErrProviderError, err)
		observe(a.provider, a.model, "annotate", start, err)
		return domain.Annotation{}, err
	}

	observe(a.provider, a.model, "annotate", start, nil)
	recordTokens(a.provider, a.model, resp.Usage.PromptTokens, resp.Usage.TotalTokens)
	return ann, nil
}

// httpURL returns an HTTPS URL for ref; gs:// objects are addressed through
// the public storage endpoint.
func httpURL(ref image.Ref) string {
	if ref.URL != "" {
		return ref.URL
	}
	return gcsPublicHost + ref.Bucket + "/" + (&url.URL{Path: ref.Path}).EscapedPath()
}
