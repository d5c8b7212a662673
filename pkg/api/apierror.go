// Package api exposes the title workflow over HTTP. Errors are rendered as
// RFC 7807 problem details.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// TraceID is the request id of the failed call.
	TraceID string `json:"trace_id,omitempty"`
	// Class is the error class the failure was mapped from.
	Class string `json:"class,omitempty"`
	// Retryable tells the caller whether repeating the same call may succeed.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("https://titlevault.dev/errors/%d", status)
}

func writeProblem(w http.ResponseWriter, problem *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   problemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteErrorR writes an RFC 7807 response enriched with request context
// (trace_id from X-Request-ID, instance from request URI).
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get(RequestIDHeader),
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but NEVER exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// StatusFor maps an error class onto an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, property.ErrNotOwner) {
		return http.StatusForbidden
	}
	switch property.Classify(err) {
	case property.ClassNone:
		return http.StatusOK
	case property.ClassInput:
		return http.StatusBadRequest
	case property.ClassNotFound:
		return http.StatusNotFound
	case property.ClassTerminal:
		return http.StatusConflict
	case property.ClassRetry, property.ClassAdmin:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteServiceError renders a service error as a problem detail. Internal
// errors are logged and replaced by a generic message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	class := property.Classify(err)
	status := StatusFor(err)
	if class == property.ClassInternal {
		slog.ErrorContext(r.Context(), "internal server error",
			"path", r.URL.Path, "request_id", w.Header().Get(RequestIDHeader), "error", err)
		writeProblem(w, &ProblemDetail{
			Type:     problemType(status),
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   "An unexpected error occurred. Please try again later.",
			Instance: r.URL.Path,
			TraceID:  w.Header().Get(RequestIDHeader),
			Class:    string(class),
		})
		return
	}
	writeProblem(w, &ProblemDetail{
		Type:      problemType(status),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    err.Error(),
		Instance:  r.URL.Path,
		TraceID:   w.Header().Get(RequestIDHeader),
		Class:     string(class),
		Retryable: class == property.ClassRetry,
	})
}
