// Package httpapi provides the HTTP transport for the configuration
// service: RFC 7807 Problem Detail error responses and the error-kind
// to status-code mapping that lets handlers turn an *errs.Error
// straight into a response.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cacsvc/core/pkg/errs"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, r *http.Request, status int, title, detail, code string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://configsvc.internal/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     code,
		TraceID:  w.Header().Get("X-Request-ID"),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusBadRequest, "Bad Request", detail, "")
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusNotFound, "Not Found", detail, string(errs.CodeNotFound))
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "the HTTP method is not supported for this endpoint", "")
}

// WriteTooManyRequests writes a 429 error response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, r, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded, retry after the specified interval", "")
}

// WriteInternal writes a 500 error response. err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err, "path", r.URL.Path)
	WriteError(w, r, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred, please try again later", string(errs.CodeStoreError))
}

// WriteDomainError inspects err for a *errs.Error and maps its Kind/Code
// to the right HTTP status; anything else is treated as an opaque 500.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		WriteInternal(w, r, err)
		return
	}

	switch e.Kind {
	case errs.KindValidation:
		WriteError(w, r, http.StatusUnprocessableEntity, "Unprocessable Entity", e.Message, string(e.Code))
	case errs.KindLookup:
		WriteError(w, r, http.StatusNotFound, "Not Found", e.Message, string(e.Code))
	default:
		slog.Error("store error", "error", e, "path", r.URL.Path)
		WriteError(w, r, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred, please try again later", string(e.Code))
	}
}
