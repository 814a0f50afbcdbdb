package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/paulmach/orb"
)

//go:embed templates/map.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html"))

const defaultTitle = "Isopleth"

// page is the data handed to the HTML template.
type page struct {
	Title  string
	Maps   []mapConfig
	Legend *Legend
	Sync   bool
}

// mapConfig is the JSON form of a Map consumed by the Leaflet script.
// Coordinates are [lat, lon] as Leaflet expects.
type mapConfig struct {
	ID           string         `json:"id"`
	Center       [2]float64     `json:"center"`
	Zoom         int            `json:"zoom"`
	Tiles        TileLayer      `json:"tiles"`
	Overlays     []Overlay      `json:"overlays"`
	Markers      []markerConfig `json:"markers"`
	Legend       *Legend        `json:"legend,omitempty"`
	LayerControl bool           `json:"layerControl"`
	Fit          *[2][2]float64 `json:"fit,omitempty"`
	Padding      int            `json:"padding"`
}

type markerConfig struct {
	LatLng  [2]float64 `json:"latlng"`
	Tooltip string     `json:"tooltip"`
}

// WriteHTML writes the map as a standalone HTML document.
func (m *Map) WriteHTML(w io.Writer) error {
	title := defaultTitle
	if m.Legend != nil && m.Legend.Title != "" {
		title = m.Legend.Title
	}
	return writePage(w, page{
		Title: title,
		Maps:  []mapConfig{m.config()},
	})
}

// SaveHTML writes the map to path.
func (m *Map) SaveHTML(path string) error {
	return saveTo(path, m.WriteHTML)
}

// WriteHTML writes both maps as a single HTML document with synchronized views.
func (d *DualMap) WriteHTML(w io.Writer) error {
	return writePage(w, page{
		Title:  dualLegendTitle,
		Maps:   []mapConfig{d.Left.config(), d.Right.config()},
		Legend: d.Legend,
		Sync:   true,
	})
}

// SaveHTML writes the dual map to path.
func (d *DualMap) SaveHTML(path string) error {
	return saveTo(path, d.WriteHTML)
}

func writePage(w io.Writer, p page) error {
	if err := pageTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}
	return nil
}

// saveTo renders into memory and only then writes path.
func saveTo(path string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // exported maps are meant to be shared
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (m *Map) config() mapConfig {
	tiles := m.Tiles
	if tiles.URL == "" {
		tiles = Positron
	}

	zoom := m.Zoom
	if zoom == 0 {
		zoom = DefaultZoom
	}

	cfg := mapConfig{
		ID:           m.ID,
		Center:       latLng(m.Center),
		Zoom:         zoom,
		Tiles:        tiles,
		Overlays:     m.Overlays,
		Legend:       m.Legend,
		LayerControl: m.LayerControl,
		Padding:      m.Padding,
	}

	cfg.Markers = make([]markerConfig, len(m.Markers))
	for i, mk := range m.Markers {
		cfg.Markers[i] = markerConfig{LatLng: latLng(mk.Point), Tooltip: mk.Tooltip}
	}

	if m.hasFit() {
		cfg.Fit = &[2][2]float64{latLng(m.FitBounds.Min), latLng(m.FitBounds.Max)}
	}

	return cfg
}

func latLng(p orb.Point) [2]float64 {
	return [2]float64{p.Lat(), p.Lon()}
}
