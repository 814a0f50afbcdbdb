package mapbox

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/isopleth/isopleth/internal/isochrone"
)

// Query parameter names understood by the isochrone endpoint.
const (
	paramContoursMinutes = "contours_minutes"
	paramContoursMeters  = "contours_meters"
	paramContoursColors  = "contours_colors"
	paramPolygons        = "polygons"
	paramDenoise         = "denoise"
	paramAccessToken     = "access_token"
)

// BuildURL validates q and composes the isochrone request URL.
// No network I/O is performed.
func BuildURL(baseURL string, q isochrone.Query) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	values := url.Values{}
	values.Set(contourParam(q.ContourType), joinInts(q.APIValues()))
	if len(q.Colors) > 0 {
		colors := make([]string, len(q.Colors))
		for i, c := range q.Colors {
			colors[i] = isochrone.NormalizeColor(c)
		}
		values.Set(paramContoursColors, strings.Join(colors, ","))
	}
	if q.Denoise != nil {
		values.Set(paramDenoise, formatFloat(*q.Denoise))
	}
	values.Set(paramPolygons, "true")
	values.Set(paramAccessToken, q.AccessToken)

	// The API takes the origin as {lon},{lat}
	return fmt.Sprintf("%s/isochrone/v1/mapbox/%s/%s,%s?%s",
		strings.TrimRight(baseURL, "/"),
		q.Profile,
		formatFloat(q.Origin.Lon),
		formatFloat(q.Origin.Lat),
		values.Encode(),
	), nil
}

// RedactURL replaces the access token in a request URL so it can be logged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has(paramAccessToken) {
		q.Set(paramAccessToken, "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func contourParam(t isochrone.ContourType) string {
	if t == isochrone.ContourDistance {
		return paramContoursMeters
	}
	return paramContoursMinutes
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
