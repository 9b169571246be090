package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

type errorCode string

// API error codes.
const (
	codeBadRequest        errorCode = "bad_request"
	codeUnauthorized      errorCode = "unauthorized"
	codeValidationFailed  errorCode = "validation_failed"
	codeImageNotFound     errorCode = "image_not_found"
	codeInvalidID         errorCode = "invalid_id"
	codeVectorDimMismatch errorCode = "vector_dim_mismatch"
	codeUnknownField      errorCode = "unknown_field"
	codeUnsupportedDist   errorCode = "unsupported_distance"
	codeRateLimited       errorCode = "rate_limited"
	codeBudgetExceeded    errorCode = "budget_exceeded"
	codeProviderError     errorCode = "provider_error"
	codeNotConfigured     errorCode = "not_configured"
	codeUnavailable       errorCode = "store_unavailable"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// sentinels in match order; the first hit decides the response.
var sentinels = []struct {
	err    error
	status int
	code   errorCode
}{
	{domain.ErrImageNotFound, http.StatusNotFound, codeImageNotFound},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch},
	{domain.ErrUnknownField, http.StatusBadRequest, codeUnknownField},
	{domain.ErrUnsupportedDistance, http.StatusBadRequest, codeUnsupportedDist},
	{domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed},
	{domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited},
	{domain.ErrBudgetExceeded, http.StatusPaymentRequired, codeBudgetExceeded},
	{domain.ErrEmptyEmbedding, http.StatusBadGateway, codeProviderError},
	{domain.ErrProviderError, http.StatusBadGateway, codeProviderError},
	{domain.ErrNotConfigured, http.StatusNotImplemented, codeNotConfigured},
	{domain.ErrTransient, http.StatusServiceUnavailable, codeUnavailable},
}

func defaultErrorHandlers() []errorHandler {
	hs := make([]errorHandler, len(sentinels))
	for i, s := range sentinels {
		hs[i] = sentinelHandler(s.err, s.status, s.code)
	}
	return hs
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Validation errors keep their full text since it only describes caller input.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrVectorDimMismatch) ||
		errors.Is(err, domain.ErrUnknownField) {
		return err.Error()
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
