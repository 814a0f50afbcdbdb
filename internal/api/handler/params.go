package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/isochrone"
)

// Query parameter defaults.
const (
	defaultProfile     = isochrone.ProfileDriving
	defaultContourType = isochrone.ContourTime
)

// queryFromValues builds an isochrone query from URL parameters:
//
//	lat, lon   required
//	contours   required, comma-separated
//	profile    driving | driving-traffic | walking | cycling (default driving)
//	type       time | distance (default time)
//	units      metric | imperial (default metric)
//	colors     optional, comma-separated hex colors
//	denoise    optional, 0..1
//
// The access token is left empty so the provider's own token is used.
func queryFromValues(v url.Values) (isochrone.Query, error) {
	var q isochrone.Query
	var err error

	if q.Origin, err = parseOrigin(v.Get("lat"), v.Get("lon")); err != nil {
		return q, err
	}

	q.Profile = defaultProfile
	if s := v.Get("profile"); s != "" {
		if q.Profile, err = isochrone.ParseProfile(s); err != nil {
			return q, err
		}
	}

	q.ContourType = defaultContourType
	if s := v.Get("type"); s != "" {
		if q.ContourType, err = isochrone.ParseContourType(s); err != nil {
			return q, err
		}
	}

	if q.Units, err = isochrone.ParseUnits(v.Get("units")); err != nil {
		return q, err
	}

	if q.ContourValues, err = isochrone.ParseValues(v.Get("contours")); err != nil {
		return q, err
	}

	q.Colors = isochrone.ParseColors(v.Get("colors"))

	if s := v.Get("denoise"); s != "" {
		d, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, invalidParam("INVALID_DENOISE", fmt.Sprintf("denoise %q is not a number", s))
		}
		q.Denoise = &d
	}

	return q, nil
}

// queryFromBatch builds the shared query of a batch request. The origin is
// filled in per batch entry.
func queryFromBatch(req models.BatchRequest) (isochrone.Query, error) {
	var q isochrone.Query
	var err error

	q.Profile = defaultProfile
	if req.Profile != "" {
		if q.Profile, err = isochrone.ParseProfile(req.Profile); err != nil {
			return q, err
		}
	}

	q.ContourType = defaultContourType
	if req.Type != "" {
		if q.ContourType, err = isochrone.ParseContourType(req.Type); err != nil {
			return q, err
		}
	}

	if q.Units, err = isochrone.ParseUnits(req.Units); err != nil {
		return q, err
	}

	if len(req.Contours) == 0 {
		return q, invalidParam("MISSING_CONTOURS", "at least one contour value is required")
	}
	q.ContourValues = req.Contours
	q.Colors = req.Colors
	q.Denoise = req.Denoise

	return q, nil
}

func parseOrigin(lat, lon string) (isochrone.Coordinate, error) {
	if strings.TrimSpace(lat) == "" || strings.TrimSpace(lon) == "" {
		return isochrone.Coordinate{}, invalidParam("INVALID_ORIGIN", "lat and lon are required")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return isochrone.Coordinate{}, invalidParam("INVALID_ORIGIN", fmt.Sprintf("lat %q is not a number", lat))
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return isochrone.Coordinate{}, invalidParam("INVALID_ORIGIN", fmt.Sprintf("lon %q is not a number", lon))
	}
	return isochrone.Coordinate{Lat: la, Lon: lo}, nil
}

func invalidParam(code, message string) *isochrone.Error {
	return &isochrone.Error{Code: code, Message: message, Err: isochrone.ErrInvalidParameter}
}
