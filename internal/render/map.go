// Package render draws isochrone results onto interactive Leaflet maps and
// exports them as standalone HTML documents.
package render

import (
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultZoom is the initial zoom of a new map before it is fit to its contents.
const DefaultZoom = 12

// TileLayer is a raster basemap.
type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"maxZoom"`
}

// Positron is the CartoDB Positron light basemap.
var Positron = TileLayer{
	Name:        "Light Map",
	URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
	Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`,
	MaxZoom:     20,
}

// Style is the Leaflet path style of an overlay.
type Style struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// Overlay is a named GeoJSON layer drawn on the map.
type Overlay struct {
	Name    string           `json:"name"`
	Tooltip string           `json:"tooltip"`
	Style   Style            `json:"style"`
	Feature *geojson.Feature `json:"feature"`
}

// Marker is a point annotation.
type Marker struct {
	Point   orb.Point `json:"point"`
	Tooltip string    `json:"tooltip"`
}

// LegendItem is a single swatch in a categorical legend.
type LegendItem struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend is a categorical legend drawn in the map corner.
type Legend struct {
	Title string       `json:"title"`
	Items []LegendItem `json:"items"`
}

// Add appends an item unless an identical one is already present.
func (l *Legend) Add(item LegendItem) {
	for _, existing := range l.Items {
		if existing == item {
			return
		}
	}
	l.Items = append(l.Items, item)
}

// Map is an in-memory description of a Leaflet map.
type Map struct {
	ID           string
	Center       orb.Point
	Zoom         int
	Tiles        TileLayer
	Overlays     []Overlay
	Markers      []Marker
	Legend       *Legend
	LayerControl bool

	// FitBounds, when non-empty, is applied after all layers are added.
	FitBounds orb.Bound
	Padding   int
}

// NewMap creates an empty map centered on center (lon/lat).
func NewMap(center orb.Point) *Map {
	return &Map{
		ID:     "map_" + uuid.New().String()[:8],
		Center: center,
		Zoom:   DefaultZoom,
		Tiles:  Positron,
	}
}

// Bound returns the bounding box of all overlays and markers.
// A map with no content is bounded by its center.
func (m *Map) Bound() orb.Bound {
	b := m.Center.Bound()
	for _, o := range m.Overlays {
		if o.Feature != nil && o.Feature.Geometry != nil {
			b = b.Union(o.Feature.Geometry.Bound())
		}
	}
	for _, mk := range m.Markers {
		b = b.Extend(mk.Point)
	}
	return b
}

// Fit sets the view to b with padding in pixels.
func (m *Map) Fit(b orb.Bound, padding int) {
	m.FitBounds = b
	m.Padding = padding
}

func (m *Map) hasFit() bool {
	return m.FitBounds != (orb.Bound{})
}
