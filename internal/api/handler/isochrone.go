package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/isopleth/isopleth/internal/api/middleware"
	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/api/response"
	"github.com/isopleth/isopleth/internal/isochrone"
)

// MaxBatchOrigins caps the number of origins in one batch request.
const MaxBatchOrigins = 25

// FailedOriginsHeader lists the batch origins that produced no result.
const FailedOriginsHeader = models.HeaderFailedOrigins

// IsochroneHandler serves isochrone polygons as GeoJSON.
type IsochroneHandler struct {
	service *isochrone.Service
	logger  zerolog.Logger
}

// NewIsochroneHandler creates a new IsochroneHandler.
func NewIsochroneHandler(service *isochrone.Service, logger zerolog.Logger) *IsochroneHandler {
	return &IsochroneHandler{service: service, logger: logger}
}

// GetIsochrones handles GET /v1/isochrones.
func (h *IsochroneHandler) GetIsochrones(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromValues(r.URL.Query())
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	result, err := h.service.Isochrones(r.Context(), q)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.GeoJSON(w, r, isochrone.FeatureCollection(result))
}

// BatchIsochrones handles POST /v1/isochrones/batch. Origins that fail are
// listed in the X-Failed-Origins header; the request only fails as a whole
// when no origin succeeded.
func (h *IsochroneHandler) BatchIsochrones(w http.ResponseWriter, r *http.Request) {
	var input models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if len(input.Origins) == 0 {
		response.BadRequest(w, r, "at least one origin is required", []models.FieldError{
			{Field: "origins", Message: "required", Code: "MISSING_ORIGINS"},
		})
		return
	}
	if len(input.Origins) > MaxBatchOrigins {
		response.BadRequest(w, r, fmt.Sprintf("at most %d origins are allowed", MaxBatchOrigins), []models.FieldError{
			{Field: "origins", Message: fmt.Sprintf("got %d origins", len(input.Origins)), Code: "TOO_MANY_ORIGINS"},
		})
		return
	}

	q, err := queryFromBatch(input)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	origins := make([]isochrone.Origin, len(input.Origins))
	seen := make(map[string]bool, len(input.Origins))
	for i, o := range input.Origins {
		id := o.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		if seen[id] {
			response.BadRequest(w, r, fmt.Sprintf("duplicate origin id %q", id), []models.FieldError{
				{Field: "origins", Message: "ids must be unique", Code: "DUPLICATE_ORIGIN"},
			})
			return
		}
		seen[id] = true
		origins[i] = isochrone.Origin{ID: id, Coordinate: isochrone.Coordinate{Lat: o.Lat, Lon: o.Lon}}
	}

	results, err := h.service.Batch(r.Context(), q, origins)
	if len(results) == 0 {
		response.FromError(w, r, err)
		return
	}

	if err != nil {
		succeeded := make(map[string]bool, len(results))
		for _, res := range results {
			succeeded[res.ID] = true
		}
		var failed []string
		for _, o := range origins {
			if !succeeded[o.ID] {
				failed = append(failed, o.ID)
			}
		}

		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Strs("failed_origins", failed).
			Msg("batch completed with failures")
		w.Header().Set(FailedOriginsHeader, strings.Join(failed, ","))
	}

	response.GeoJSON(w, r, isochrone.FeatureCollection(results...))
}
