// Package problem implements RFC 7807 Problem Detail error responses.
// All API error responses use this format.
package problem

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
)

// Detail implements RFC 7807 (Problem Details for HTTP APIs).
type Detail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Code is the machine-readable engine error code, when one applies.
	Code string `json:"code,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// TraceID links to the request trace.
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (d *Detail) Error() string {
	return fmt.Sprintf("%s: %s", d.Title, d.Detail)
}

// Write writes an RFC 7807 Problem Detail JSON response.
func Write(w http.ResponseWriter, status int, title, detail string) {
	writeDetail(w, &Detail{
		Type:   fmt.Sprintf("https://poolrun.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteAppError maps a typed engine error onto the wire, carrying its code.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		WriteInternal(w, err)
		return
	}
	status := code.HTTPStatus()
	writeDetail(w, &Detail{
		Type:   fmt.Sprintf("https://poolrun.dev/errors/%d", status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
		Code:   string(code),
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	Write(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	Write(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	Write(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	Write(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteTooManyRequests writes a 429 error response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	Write(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response. The error is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	Write(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

func writeDetail(w http.ResponseWriter, d *Detail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
