package models

// Origin is a labelled starting point in a batch request.
type Origin struct {
	ID  string  `json:"id,omitempty"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BatchRequest computes the same contours around several origins.
type BatchRequest struct {
	Profile  string    `json:"profile,omitempty"`
	Type     string    `json:"type,omitempty"`
	Contours []float64 `json:"contours"`
	Units    string    `json:"units,omitempty"`
	Colors   []string  `json:"colors,omitempty"`
	Denoise  *float64  `json:"denoise,omitempty"`
	Origins  []Origin  `json:"origins"`
}

// Response headers reporting partial outcomes of an otherwise successful
// request.
const (
	// HeaderRenderIncomplete is "true" when some contours could not be drawn.
	HeaderRenderIncomplete = "X-Render-Incomplete"

	// HeaderFailedOrigins lists the batch origins that produced no result.
	HeaderFailedOrigins = "X-Failed-Origins"
)
