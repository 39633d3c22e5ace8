package models

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Problem is an RFC7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID echoes the request id.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`

	// RetryAfter is set for transient failures such as an unreachable
	// air quality provider, in whole seconds.
	RetryAfter int `json:"retry_after,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.runcoach.app/problems/"

// Problem types.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
	ProblemTypeUnprocessable    = problemBase + "unprocessable"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
)

type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:       {"Validation error", http.StatusBadRequest},
	ProblemTypeUnauthorized:     {"Unauthorized", http.StatusUnauthorized},
	ProblemTypeTLSRequired:      {"TLS required", http.StatusForbidden},
	ProblemTypeNotFound:         {"Not found", http.StatusNotFound},
	ProblemTypeUnsupportedMedia: {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeUnprocessable:    {"Unprocessable request", http.StatusUnprocessableEntity},
	ProblemTypeTooManyRequests:  {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:         {"Internal server error", http.StatusInternalServerError},
	ProblemTypeUnavailable:      {"Service unavailable", http.StatusServiceUnavailable},
}

// NewProblem creates a Problem with an explicit title and status.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// ProblemOf creates a Problem of a known type. Unknown types are reported
// as internal errors.
func ProblemOf(problemType, traceID, detail string) *Problem {
	kind, ok := problemKinds[problemType]
	if !ok {
		problemType, kind = ProblemTypeInternal, problemKinds[ProblemTypeInternal]
	}
	p := NewProblem(problemType, kind.title, kind.status, traceID)
	p.Detail = detail
	return p
}

// WithRetryAfter sets the retry hint, rounded up to whole seconds.
func (p *Problem) WithRetryAfter(d time.Duration) *Problem {
	if d > 0 {
		p.RetryAfter = int(math.Ceil(d.Seconds()))
	}
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	if p.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(p.RetryAfter))
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem carrying field errors.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := ProblemOf(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized creates a 401 Unauthorized problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return ProblemOf(ProblemTypeUnauthorized, traceID, detail)
}

// NewNotFound creates a 404 problem, e.g. for an unknown field region.
func NewNotFound(traceID, detail string) *Problem {
	return ProblemOf(ProblemTypeNotFound, traceID, detail)
}

// NewUnsupportedMediaType creates a 415 problem listing the accepted types.
func NewUnsupportedMediaType(traceID string, allowed []string) *Problem {
	return ProblemOf(ProblemTypeUnsupportedMedia, traceID, "Content-Type must be one of: "+strings.Join(allowed, ", "))
}

// NewUnprocessable creates a 422 problem for well-formed requests the engine
// cannot satisfy, such as an origin with no candidate routes.
func NewUnprocessable(traceID, detail string) *Problem {
	return ProblemOf(ProblemTypeUnprocessable, traceID, detail)
}

// NewTooManyRequests creates a 429 Too Many Requests problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return ProblemOf(ProblemTypeTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 Internal Server Error problem.
func NewInternalError(traceID, detail string) *Problem {
	return ProblemOf(ProblemTypeInternal, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return ProblemOf(ProblemTypeUnavailable, traceID, detail)
}
