package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hdshop/api/internal/platform/requestctx"
)

// Error is the canonical JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs an Error with the provided code, message, and HTTP status.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clamp(code, 80),
		Message: clamp(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WriteError writes the structured error as JSON. Request and trace ids are
// filled from the context when the error does not carry them already, so
// clients can quote an id when reporting a failure.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if id := pick(err.RequestID, middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := pick(err.TraceID, requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pick(explicit, fromCtx string, limit int) string {
	if explicit != "" {
		return explicit
	}
	return clamp(fromCtx, limit)
}

// clamp flattens newlines and truncates so a hostile error string cannot
// distort the envelope or the logs that capture it.
func clamp(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
