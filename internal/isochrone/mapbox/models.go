package mapbox

// Feature property keys in an isochrone response.
const (
	propContour = "contour"
	propColor   = "color"
)

// mapboxErrorResponse represents an error body returned by Mapbox APIs,
// e.g. {"message":"Not Authorized - Invalid Token"} or
// {"code":"InvalidInput","message":"..."}.
type mapboxErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
