package models

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/isopleth/isopleth/internal/isochrone"
)

// Problem represents an RFC7807 error response.
// This is used for all API error responses with Content-Type: application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Code is the machine-readable isochrone error code, if any.
	Code string `json:"code,omitempty"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeValidation      = "/problems/validation-error"
	ProblemTypeNotFound        = "/problems/not-found"
	ProblemTypeTooManyRequests = "/problems/too-many-requests"
	ProblemTypeUpstream        = "/problems/upstream-error"
	ProblemTypeInternal        = "/problems/internal-error"
	ProblemTypeTLSRequired     = "/problems/tls-required"
)

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors adds field errors to the Problem.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 Bad Request problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID)
	p.Detail = detail
	p.Errors = errors
	return p
}

// NewNotFound creates a 404 Not Found problem.
func NewNotFound(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID)
	p.Detail = detail
	return p
}

// NewTooManyRequests creates a 429 Too Many Requests problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID)
	p.Detail = detail
	return p
}

// NewBadGateway creates a 502 Bad Gateway problem for upstream failures.
func NewBadGateway(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeUpstream, "Upstream error", http.StatusBadGateway, traceID)
	p.Detail = detail
	return p
}

// NewInternalError creates a 500 Internal Server Error problem.
func NewInternalError(traceID, detail string) *Problem {
	p := NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID)
	p.Detail = detail
	return p
}

// NewFromError maps an isochrone error onto a Problem. Only client input
// errors carry their message; upstream failures get a fixed detail and the
// machine code.
//
//	ErrInvalidParameter                                   400
//	ErrRateLimit                                          429
//	ErrAuthentication, ErrUpstream, ErrMalformedResponse  502
//	anything else                                         500
func NewFromError(traceID string, err error) *Problem {
	var p *Problem
	switch {
	case errors.Is(err, isochrone.ErrInvalidParameter):
		p = NewBadRequest(traceID, err.Error(), nil)
	case errors.Is(err, isochrone.ErrRateLimit):
		p = NewTooManyRequests(traceID, "isochrone provider rate limit exceeded")
	case errors.Is(err, isochrone.ErrAuthentication):
		p = NewBadGateway(traceID, "isochrone provider rejected the access token")
	case errors.Is(err, isochrone.ErrUpstream):
		p = NewBadGateway(traceID, "isochrone provider request failed")
	case errors.Is(err, isochrone.ErrMalformedResponse):
		p = NewBadGateway(traceID, "isochrone provider returned an unexpected response")
	default:
		return NewInternalError(traceID, "an unexpected error occurred")
	}

	var isoErr *isochrone.Error
	if errors.As(err, &isoErr) {
		p.Code = isoErr.Code
		switch {
		case p.Status == http.StatusBadRequest:
			p.Detail = isoErr.Message
			p.Errors = []FieldError{{Field: fieldFor(isoErr.Code), Message: isoErr.Message, Code: isoErr.Code}}
		case p.Status == http.StatusBadGateway && isoErr.StatusCode != 0:
			p.Detail += " (upstream status " + strconv.Itoa(isoErr.StatusCode) + ")"
		}
	}
	return p
}

// fieldFor names the query parameter an invalid-parameter code refers to.
func fieldFor(code string) string {
	switch code {
	case "INVALID_ORIGIN":
		return "lat,lon"
	case "INVALID_PROFILE":
		return "profile"
	case "INVALID_CONTOUR_TYPE":
		return "type"
	case "INVALID_UNITS":
		return "units"
	case "INVALID_COLORS":
		return "colors"
	case "INVALID_DENOISE":
		return "denoise"
	case "MISSING_ACCESS_TOKEN":
		return "access_token"
	default:
		return "contours"
	}
}
