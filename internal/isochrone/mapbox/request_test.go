package mapbox_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/isochrone/mapbox"
)

func newYorkQuery() isochrone.Query {
	return isochrone.Query{
		Origin:        isochrone.Coordinate{Lat: 40.7128, Lon: -74.0060},
		Profile:       isochrone.ProfileDriving,
		ContourType:   isochrone.ContourTime,
		ContourValues: []float64{5, 10, 15},
		AccessToken:   "pk.test",
	}
}

func TestBuildURL(t *testing.T) {
	raw, err := mapbox.BuildURL("https://api.mapbox.com", newYorkQuery())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "api.mapbox.com", u.Host)
	assert.Equal(t, "/isochrone/v1/mapbox/driving/-74.006,40.7128", u.Path)

	params := u.Query()
	assert.Equal(t, []string{"5,10,15"}, params["contours_minutes"])
	assert.Equal(t, []string{"true"}, params["polygons"])
	assert.Equal(t, []string{"pk.test"}, params["access_token"])
	assert.NotContains(t, params, "contours_meters")
	assert.NotContains(t, params, "contours_colors")
	assert.NotContains(t, params, "denoise")
}

func TestBuildURL_ParametersAppearOnce(t *testing.T) {
	denoise := 0.5
	q := newYorkQuery()
	q.Colors = []string{"#ff0000", "00FF00", "0000ff"}
	q.Denoise = &denoise

	raw, err := mapbox.BuildURL("", q)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, mapbox.DefaultBaseURL+"/isochrone/v1/mapbox/"))

	u, err := url.Parse(raw)
	require.NoError(t, err)

	for key, values := range u.Query() {
		assert.Len(t, values, 1, "parameter %s", key)
	}
	assert.Equal(t, "ff0000,00ff00,0000ff", u.Query().Get("contours_colors"))
	assert.Equal(t, "0.5", u.Query().Get("denoise"))
}

func TestBuildURL_Distance(t *testing.T) {
	q := newYorkQuery()
	q.Profile = isochrone.ProfileWalking
	q.ContourType = isochrone.ContourDistance
	q.ContourValues = []float64{500, 1000, 2000}

	raw, err := mapbox.BuildURL("http://localhost:8080/", q)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/isochrone/v1/mapbox/walking/-74.006,40.7128", u.Path)
	assert.Equal(t, "500,1000,2000", u.Query().Get("contours_meters"))
	assert.Empty(t, u.Query().Get("contours_minutes"))
}

func TestBuildURL_ImperialConvertsToMeters(t *testing.T) {
	q := newYorkQuery()
	q.ContourType = isochrone.ContourDistance
	q.Units = isochrone.UnitsImperial
	q.ContourValues = []float64{1, 2, 5}

	raw, err := mapbox.BuildURL("", q)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "1609,3219,8047", u.Query().Get("contours_meters"))
}

func TestBuildURL_InvalidParameter(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *isochrone.Query)
	}{
		{"latitude out of range", func(q *isochrone.Query) { q.Origin.Lat = 95 }},
		{"unknown profile", func(q *isochrone.Query) { q.Profile = "boat" }},
		{"missing token", func(q *isochrone.Query) { q.AccessToken = "" }},
		{"no contours", func(q *isochrone.Query) { q.ContourValues = nil }},
		{"five contours", func(q *isochrone.Query) { q.ContourValues = []float64{1, 2, 3, 4, 5} }},
		{"descending contours", func(q *isochrone.Query) { q.ContourValues = []float64{15, 10} }},
		{"negative contour", func(q *isochrone.Query) { q.ContourValues = []float64{-1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newYorkQuery()
			tt.mutate(&q)

			raw, err := mapbox.BuildURL("", q)
			assert.Empty(t, raw)
			assert.ErrorIs(t, err, isochrone.ErrInvalidParameter)
		})
	}
}

func TestRedactURL(t *testing.T) {
	raw, err := mapbox.BuildURL("", newYorkQuery())
	require.NoError(t, err)

	redacted := mapbox.RedactURL(raw)
	assert.NotContains(t, redacted, "pk.test")
	assert.Contains(t, redacted, "access_token=REDACTED")
	assert.Contains(t, redacted, "contours_minutes=5%2C10%2C15")

	assert.Equal(t, "https://example.com/a?b=c", mapbox.RedactURL("https://example.com/a?b=c"))
}
