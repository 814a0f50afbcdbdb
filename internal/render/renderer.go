package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/isopleth/isopleth/internal/isochrone"
)

const (
	// FitPadding is the padding in pixels used when fitting a map to its contours.
	FitPadding = 10

	defaultFillOpacity = 0.4
	outlineColor       = "black"
	outlineWeight      = 1
)

// DefaultPalette colors contours that carry no color of their own, innermost first.
var DefaultPalette = []string{"6706ce", "04e813", "4286f4", "f4a742"}

// Config holds configuration for the renderer.
type Config struct {
	// Palette overrides DefaultPalette (optional, hex without '#').
	Palette []string

	// FillOpacity overrides the default fill opacity of 0.4 (optional).
	FillOpacity float64

	// Logger for render operations.
	Logger zerolog.Logger
}

// Renderer turns isochrone results into map overlays.
type Renderer struct {
	palette     []string
	fillOpacity float64
	logger      zerolog.Logger
}

// NewRenderer creates a new renderer.
func NewRenderer(cfg Config) *Renderer {
	palette := cfg.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}

	fillOpacity := cfg.FillOpacity
	if fillOpacity <= 0 || fillOpacity > 1 {
		fillOpacity = defaultFillOpacity
	}

	return &Renderer{
		palette:     palette,
		fillOpacity: fillOpacity,
		logger:      cfg.Logger,
	}
}

// Render adds one overlay per contour of result to m and returns m.
// A nil m creates a new map centered on the origin.
//
// Contours are drawn largest first so smaller ones stay on top. A contour
// that cannot be drawn produces an ErrRender error and is skipped; the
// remaining contours are still added and all errors are joined.
func (r *Renderer) Render(result *isochrone.Result, m *Map) (*Map, error) {
	if result == nil {
		return m, fmt.Errorf("%w: no result to render", isochrone.ErrRender)
	}

	origin := orb.Point{result.Origin.Lon, result.Origin.Lat}
	if m == nil {
		m = NewMap(origin)
	}
	if m.Legend == nil {
		m.Legend = &Legend{Title: legendTitle(result)}
	}

	var errs []error
	for _, i := range outerFirst(result.Contours) {
		c := result.Contours[i]
		label := result.FormatValue(c.Value)

		ring, err := closedRing(c)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("contour", label).
				Msg("skipping contour")
			errs = append(errs, &isochrone.Error{
				Code:    "EMPTY_RING",
				Message: fmt.Sprintf("contour %s: %v", label, err),
				Err:     isochrone.ErrRender,
			})
			continue
		}

		color := r.colorFor(i, c)

		feature := geojson.NewFeature(orb.Polygon{ring})
		feature.Properties["contour"] = c.Value
		feature.Properties["units"] = result.Label()
		feature.Properties["mode"] = string(result.Profile)

		m.Overlays = append(m.Overlays, Overlay{
			Name:    label,
			Tooltip: label,
			Style: Style{
				Color:       outlineColor,
				Weight:      outlineWeight,
				FillColor:   "#" + color,
				FillOpacity: r.fillOpacity,
			},
			Feature: feature,
		})
		m.Legend.Add(LegendItem{Label: label, Color: "#" + color})
	}

	m.Markers = append(m.Markers, Marker{
		Point:   origin,
		Tooltip: fmt.Sprintf("Origin (%s)", result.Profile),
	})
	m.LayerControl = true
	m.Fit(m.Bound(), FitPadding)

	r.logger.Debug().
		Str("map_id", m.ID).
		Int("overlays", len(m.Overlays)).
		Int("errors", len(errs)).
		Msg("rendered isochrones")

	return m, errors.Join(errs...)
}

// colorFor picks the contour's own color, or a palette entry by index.
func (r *Renderer) colorFor(i int, c isochrone.Contour) string {
	if c.Color != "" {
		return isochrone.NormalizeColor(c.Color)
	}
	return r.palette[i%len(r.palette)]
}

// outerFirst returns contour indices ordered by descending value.
func outerFirst(contours []isochrone.Contour) []int {
	order := make([]int, len(contours))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return contours[order[a]].Value > contours[order[b]].Value
	})
	return order
}

// closedRing converts the contour polygon to a closed lon/lat ring.
func closedRing(c isochrone.Contour) (orb.Ring, error) {
	if len(c.Polygon) == 0 {
		return nil, errors.New("empty ring")
	}
	if len(c.Polygon) < 3 {
		return nil, fmt.Errorf("ring has %d vertices, need at least 3", len(c.Polygon))
	}

	ring := c.Ring()
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

func legendTitle(result *isochrone.Result) string {
	kind := "Isochrone"
	if result.ContourType == isochrone.ContourDistance {
		kind = "Isodistance"
	}
	return kind + " " + result.Label()
}

// profileLabel formats a value with the travel profile, e.g. "15 minutes (walking)".
func profileLabel(result *isochrone.Result, v float64) string {
	return result.FormatValue(v) + " (" + strings.ToLower(string(result.Profile)) + ")"
}
