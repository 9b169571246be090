package chi

import (
	"errors"
	"sort"
	"time"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/domain/moderation"
	ingestuc "github.com/kailas-cloud/imagedex/internal/usecase/ingest"
)

type imageRequest struct {
	Bucket      string               `json:"bucket"`
	Path        string               `json:"path"`
	Name        string               `json:"name,omitempty"`
	URL         string               `json:"url,omitempty"`
	Width       int                  `json:"width,omitempty"`
	Height      int                  `json:"height,omitempty"`
	CompanyID   string               `json:"company_id,omitempty"`
	AlbumID     string               `json:"album_id,omitempty"`
	Description string               `json:"description,omitempty"`
	Labels      []string             `json:"labels,omitempty"`
	Colors      []image.ColorWeight  `json:"colors,omitempty"`
	Embeddings  map[string][]float32 `json:"embeddings,omitempty"`
}

func (r *imageRequest) toIngest() ingestuc.Request {
	req := ingestuc.Request{
		Bucket:      r.Bucket,
		Path:        r.Path,
		Name:        r.Name,
		URL:         r.URL,
		Width:       r.Width,
		Height:      r.Height,
		CompanyID:   r.CompanyID,
		AlbumID:     r.AlbumID,
		Description: r.Description,
		Labels:      r.Labels,
		Colors:      r.Colors,
	}
	if len(r.Embeddings) > 0 {
		req.Embeddings = make(map[image.EmbeddingField][]float32, len(r.Embeddings))
		for name, v := range r.Embeddings {
			req.Embeddings[image.EmbeddingField(name)] = v
		}
	}
	return req
}

type batchRequest struct {
	Images []imageRequest `json:"images"`
}

type batchResultItem struct {
	ID      string     `json:"id,omitempty"`
	Status  string     `json:"status"` // created, updated, error
	Code    *errorCode `json:"code,omitempty"`
	Message *string    `json:"message,omitempty"`
}

type batchResponse struct {
	Items     []batchResultItem `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

type imageResponse struct {
	ID          string               `json:"id"`
	Bucket      string               `json:"bucket"`
	Path        string               `json:"path"`
	Name        string               `json:"name,omitempty"`
	URL         string               `json:"url,omitempty"`
	Width       int                  `json:"width,omitempty"`
	Height      int                  `json:"height,omitempty"`
	Description string               `json:"description,omitempty"`
	Labels      []string             `json:"labels,omitempty"`
	Colors      []image.ColorWeight  `json:"colors,omitempty"`
	Fields      []string             `json:"embedding_fields,omitempty"`
	Vectors     map[string][]float32 `json:"embeddings,omitempty"`
	Valid       bool                 `json:"valid"`
	Published   bool                 `json:"published"`
	CompanyID   string               `json:"company_id,omitempty"`
	AlbumID     string               `json:"album_id,omitempty"`
	TimeCreated *time.Time           `json:"time_created,omitempty"`
	TimeUpdated *time.Time           `json:"time_updated,omitempty"`
}

type imageListResponse struct {
	Items      []imageResponse `json:"items"`
	NextCursor *string         `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

type annotateRequest struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
}

type annotationResponse struct {
	Description string              `json:"description"`
	Labels      []string            `json:"labels"`
	Colors      []image.ColorWeight `json:"colors"`
	SafeSearch  map[string]string   `json:"safe_search,omitempty"`
	Valid       *bool               `json:"valid,omitempty"`
}

type searchRequest struct {
	Vector         []float32 `json:"vector,omitempty"`
	Text           string    `json:"text,omitempty"`
	ID             string    `json:"id,omitempty"`
	Field          string    `json:"field"`
	K              int       `json:"k,omitempty"`
	Distance       string    `json:"distance,omitempty"`
	IncludeVectors bool      `json:"include_vectors,omitempty"`
}

type searchResultItem struct {
	Image    imageResponse `json:"image"`
	Distance float64       `json:"distance"`
}

type searchResponse struct {
	Items []searchResultItem `json:"items"`
	K     int                `json:"k"`
	Total int                `json:"total"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func imageToResponse(r *image.Record, includeVectors bool) imageResponse {
	resp := imageResponse{
		ID:          r.ID,
		Bucket:      r.Bucket,
		Path:        r.Path,
		Name:        r.Name,
		URL:         r.URL,
		Width:       r.Width,
		Height:      r.Height,
		Description: r.Description,
		Labels:      r.Labels,
		Colors:      r.Colors,
		Valid:       r.Valid,
		Published:   r.Published,
		CompanyID:   r.CompanyID,
		AlbumID:     r.AlbumID,
		TimeCreated: timePtr(r.TimeCreated),
		TimeUpdated: timePtr(r.TimeUpdated),
	}
	for f, v := range r.Embeddings {
		if len(v) == 0 {
			continue
		}
		resp.Fields = append(resp.Fields, string(f))
		if includeVectors {
			if resp.Vectors == nil {
				resp.Vectors = make(map[string][]float32, len(r.Embeddings))
			}
			resp.Vectors[string(f)] = v
		}
	}
	sort.Strings(resp.Fields)
	return resp
}

func annotationToResponse(a *domain.Annotation) annotationResponse {
	resp := annotationResponse{
		Description: a.Description,
		Labels:      a.Labels,
		Colors:      a.Colors,
	}
	if resp.Labels == nil {
		resp.Labels = []string{}
	}
	if resp.Colors == nil {
		resp.Colors = []image.ColorWeight{}
	}
	if a.Moderation != nil {
		resp.SafeSearch = make(map[string]string, len(a.Moderation))
		for c, l := range a.Moderation {
			resp.SafeSearch[string(c)] = l.String()
		}
		valid := moderation.ComputeValid(a.Moderation)
		resp.Valid = &valid
	}
	return resp
}

func batchResultToResponse(r ingestuc.Result) batchResultItem {
	if r.Err != nil {
		code := batchErrorCode(r.Err)
		msg := safeDomainMessage(r.Err)
		return batchResultItem{ID: r.ID, Status: "error", Code: &code, Message: &msg}
	}
	status := "updated"
	if r.Created {
		status = "created"
	}
	return batchResultItem{ID: r.ID, Status: status}
}

func batchErrorCode(err error) errorCode {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return codeInternalError
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
