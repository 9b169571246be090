// Package chi is the HTTP API for ingesting, reading and searching images.
package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	healthuc "github.com/kailas-cloud/imagedex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/imagedex/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/imagedex/internal/usecase/search"
)

// maxBodyBytes caps request bodies; a full batch of image refs fits well below it.
const maxBodyBytes = 4 << 20

// Server serves the image API.
type Server struct {
	images        *ingestuc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	annotator     domain.Annotator
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	images *ingestuc.Service,
	search *searchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		images:        images,
		search:        search,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// WithAnnotator enables POST /images/annotate.
func (s *Server) WithAnnotator(a domain.Annotator) *Server {
	s.annotator = a
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/images", func(r chi.Router) {
		r.Get("/", s.ListImages)
		r.Post("/", s.AddImage)
		r.Post("/batch", s.AddImages)
		r.Post("/annotate", s.Annotate)
		r.Post("/search", s.Search)
		r.Get("/{id}", s.GetImage)
		r.Delete("/{id}", s.DeleteImage)
	})
}

// AddImage handles POST /images.
func (s *Server) AddImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.images.Add(r.Context(), req.toIngest())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	rec, err := s.images.Get(r.Context(), res.ID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		w.Header().Set("Location", "/images/"+res.ID)
	}
	writeJSON(w, status, imageToResponse(&rec, false))
}

// AddImages handles POST /images/batch.
func (s *Server) AddImages(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Images) == 0 || len(req.Images) > ingestuc.MaxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("images count must be between 1 and %d", ingestuc.MaxBatchSize))
		return
	}

	reqs := make([]ingestuc.Request, len(req.Images))
	for i := range req.Images {
		reqs[i] = req.Images[i].toIngest()
	}

	results := s.images.AddAll(r.Context(), reqs)
	resp := batchResponse{Items: make([]batchResultItem, len(results))}
	for i, res := range results {
		resp.Items[i] = batchResultToResponse(res)
		if res.Err != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListImages handles GET /images.
func (s *Server) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	includeVectors := q.Get("include_vectors") == "true"

	page, err := s.images.List(r.Context(), q.Get("cursor"), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]imageResponse, len(page.Records))
	for i := range page.Records {
		items[i] = imageToResponse(&page.Records[i], includeVectors)
	}

	resp := imageListResponse{Items: items, HasMore: page.More}
	if next := page.Next(); next != "" {
		resp.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetImage handles GET /images/{id}.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	rec, err := s.images.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageToResponse(&rec, r.URL.Query().Get("include_vectors") == "true"))
}

// DeleteImage handles DELETE /images/{id}.
func (s *Server) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.images.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Annotate handles POST /images/annotate. The result is returned, not stored.
func (s *Server) Annotate(w http.ResponseWriter, r *http.Request) {
	if s.annotator == nil {
		s.handleDomainError(w, fmt.Errorf("annotate: %w", domain.ErrNotConfigured))
		return
	}

	var req annotateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := image.Ref{Bucket: req.Bucket, Path: strings.TrimSpace(req.Path), URL: req.URL}
	if ref.URL == "" && (ref.Bucket == "" || ref.Path == "") {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "bucket and path or url are required")
		return
	}

	ann, err := s.annotator.Annotate(r.Context(), ref)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotationToResponse(&ann))
}

// Search handles POST /images/search. Exactly one of vector, text or id selects the query.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	modes := 0
	if len(req.Vector) > 0 {
		modes++
	}
	if req.Text != "" {
		modes++
	}
	if req.ID != "" {
		modes++
	}
	if modes != 1 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "exactly one of vector, text or id is required")
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "field is required")
		return
	}

	field := image.EmbeddingField(req.Field)
	k := req.K
	if k == 0 {
		k = searchuc.DefaultK
	}
	dist := image.Distance(req.Distance)
	ctx, usage := domain.ContextWithTokenUsage(r.Context())

	var (
		hits []image.Neighbor
		err  error
	)
	switch {
	case len(req.Vector) > 0:
		hits, err = s.search.FindNearest(ctx, searchuc.Query{
			Vector: req.Vector, Field: field, K: k, Distance: dist,
		})
	case req.Text != "":
		hits, err = s.search.SearchText(ctx, req.Text, field, k, dist)
	default:
		hits, err = s.search.SimilarTo(ctx, req.ID, field, k, dist)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(hits))
	for i := range hits {
		items[i] = searchResultItem{
			Image:    imageToResponse(&hits[i].Record, req.IncludeVectors),
			Distance: hits[i].Distance,
		}
	}
	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponse{Items: items, K: k, Total: len(items)})
}

// setUsageHeaders reports provider tokens spent on the request, if any.
func setUsageHeaders(w http.ResponseWriter, u *domain.TokenUsage) {
	if u == nil || u.Calls == 0 {
		return
	}
	w.Header().Set("X-Embedding-Tokens", strconv.Itoa(u.TotalTokens))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
