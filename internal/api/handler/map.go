package handler

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/isopleth/isopleth/internal/api/middleware"
	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/api/response"
	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/render"
)

// RenderIncompleteHeader is set when some contours could not be drawn.
const RenderIncompleteHeader = models.HeaderRenderIncomplete

// MapHandler serves interactive HTML maps of isochrones.
type MapHandler struct {
	service  *isochrone.Service
	renderer *render.Renderer
	logger   zerolog.Logger
}

// NewMapHandler creates a new MapHandler.
func NewMapHandler(service *isochrone.Service, renderer *render.Renderer, logger zerolog.Logger) *MapHandler {
	return &MapHandler{service: service, renderer: renderer, logger: logger}
}

// GetMap handles GET /v1/maps. It takes the same parameters as
// GET /v1/isochrones; with compare_profile set, the second profile is drawn
// on a synchronized map next to the first.
func (h *MapHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q, err := queryFromValues(values)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	var compare *isochrone.Query
	if s := values.Get("compare_profile"); s != "" {
		profile, err := isochrone.ParseProfile(s)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		cq := q
		cq.Profile = profile
		compare = &cq
	}

	result, err := h.service.Isochrones(r.Context(), q)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	if compare == nil {
		m, err := h.renderer.Render(result, nil)
		if m == nil {
			response.FromError(w, r, err)
			return
		}
		h.writeMap(w, r, m.WriteHTML, err)
		return
	}

	other, err := h.service.Isochrones(r.Context(), *compare)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	dual, err := h.renderer.RenderDual(result, other)
	if dual == nil {
		response.FromError(w, r, err)
		return
	}
	h.writeMap(w, r, dual.WriteHTML, err)
}

// writeMap sends a rendered page. Contour errors from rendering do not fail
// the request; they are logged and flagged in a response header.
func (h *MapHandler) writeMap(w http.ResponseWriter, r *http.Request, page func(io.Writer) error, renderErr error) {
	if renderErr != nil {
		h.logger.Warn().
			Err(renderErr).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("map rendered with missing contours")
		w.Header().Set(RenderIncompleteHeader, "true")
	}

	if err := response.HTML(w, r, page); err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("failed to write map")
	}
}
