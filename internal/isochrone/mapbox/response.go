package mapbox

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/isopleth/isopleth/internal/isochrone"
)

// ParseResponse validates an isochrone HTTP response and extracts one contour
// per feature, in the order the API returned them.
// Contour values are in API units (minutes or meters).
func ParseResponse(statusCode int, body []byte) ([]isochrone.Contour, error) {
	if statusCode < 200 || statusCode > 299 {
		return nil, handleErrorResponse(statusCode, body)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, malformed("INVALID_BODY", "response is not a GeoJSON feature collection", body, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, malformed("INVALID_BODY", fmt.Sprintf("unexpected GeoJSON type %q", fc.Type), body, nil)
	}
	if len(fc.Features) == 0 {
		return nil, malformed("NO_FEATURES", "response contains no contour features", body, nil)
	}

	contours := make([]isochrone.Contour, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil {
			return nil, malformed("INVALID_FEATURE", fmt.Sprintf("feature %d is null", i), body, nil)
		}

		value, ok := numberProperty(f.Properties, propContour)
		if !ok {
			return nil, malformed("MISSING_CONTOUR", fmt.Sprintf("feature %d has no numeric %q property", i, propContour), body, nil)
		}

		ring, err := outerRing(f.Geometry)
		if err != nil {
			return nil, malformed("INVALID_GEOMETRY", fmt.Sprintf("feature %d: %v", i, err), body, nil)
		}

		color, _ := f.Properties[propColor].(string)

		contours = append(contours, isochrone.Contour{
			Value:   value,
			Color:   isochrone.NormalizeColor(color),
			Polygon: ring,
		})
	}

	return contours, nil
}

// handleErrorResponse maps Mapbox error responses to domain errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var mbErr mapboxErrorResponse
	_ = json.Unmarshal(body, &mbErr) //nolint:errcheck // message is optional

	e := &isochrone.Error{
		Provider:   ProviderName,
		StatusCode: statusCode,
		Excerpt:    isochrone.Excerpt(body),
	}

	switch statusCode {
	case http.StatusUnauthorized:
		e.Code = "UNAUTHORIZED"
		e.Message = "access token rejected - check the Mapbox access token"
		e.Err = isochrone.ErrAuthentication
	case http.StatusForbidden:
		e.Code = "FORBIDDEN"
		e.Message = "access denied - the token lacks the required scope"
		e.Err = isochrone.ErrAuthentication
	case http.StatusTooManyRequests:
		e.Code = "RATE_LIMIT"
		e.Message = "API rate limit exceeded, please try again later"
		e.Err = isochrone.ErrRateLimit
	default:
		e.Code = fmt.Sprintf("HTTP_%d", statusCode)
		if statusCode >= 500 {
			e.Code = fmt.Sprintf("SERVER_%d", statusCode)
		}
		e.Message = "isochrone provider returned an error"
		e.Err = isochrone.ErrUpstream
	}

	if mbErr.Message != "" {
		e.Message = mbErr.Message
	}
	return e
}

// outerRing extracts the outer ring of a contour geometry as lat/lon coordinates.
// Polygons are returned when polygons=true; line strings otherwise.
func outerRing(g orb.Geometry) ([]isochrone.Coordinate, error) {
	var points []orb.Point

	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) > 0 {
			points = geom[0]
		}
	case orb.MultiPolygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			points = geom[0][0]
		}
	case orb.LineString:
		points = geom
	case orb.Ring:
		points = geom
	case nil:
		return nil, fmt.Errorf("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}

	ring := make([]isochrone.Coordinate, len(points))
	for i, p := range points {
		ring[i] = isochrone.Coordinate{Lat: p.Lat(), Lon: p.Lon()}
	}
	return ring, nil
}

func numberProperty(props geojson.Properties, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func malformed(code, message string, body []byte, err error) *isochrone.Error {
	if err != nil {
		message += ": " + err.Error()
	}
	return &isochrone.Error{
		Provider: ProviderName,
		Code:     code,
		Message:  message,
		Excerpt:  isochrone.Excerpt(body),
		Err:      isochrone.ErrMalformedResponse,
	}
}
