// Package response provides utilities for HTTP response handling.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/isopleth/isopleth/internal/api/middleware"
	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/isochrone"
)

// Content types written by this package.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeGeoJSON = "application/geo+json"
	ContentTypeHTML    = "text/html; charset=utf-8"
)

// RetryAfterSeconds is sent with 429 responses. Neither httprate nor the
// isochrone provider expose an exact reset time.
const RetryAfterSeconds = 60

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// GeoJSON writes a FeatureCollection as application/geo+json.
func GeoJSON(w http.ResponseWriter, r *http.Request, fc *geojson.FeatureCollection) {
	body, err := fc.MarshalJSON()
	if err != nil {
		InternalError(w, r, "failed to encode feature collection")
		return
	}
	setRequestID(w, r)
	w.Header().Set("Content-Type", ContentTypeGeoJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HTML renders a page into memory first so that a template failure can still
// be reported as a problem response.
func HTML(w http.ResponseWriter, r *http.Request, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		InternalError(w, r, "failed to render map")
		return err
	}
	setRequestID(w, r)
	w.Header().Set("Content-Type", ContentTypeHTML)
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// FromError writes the problem an isochrone error maps to.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, isochrone.ErrRateLimit) {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	Error(w, r, models.NewFromError(middleware.GetRequestID(r.Context()), err))
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewBadRequest(traceID, detail, errors)
	Error(w, r, problem)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewNotFound(traceID, detail)
	Error(w, r, problem)
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewInternalError(traceID, detail)
	Error(w, r, problem)
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
}
