// Package isochrone provides isochrone and isodistance computation for travel profiles.
package isochrone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Sentinel errors for isochrone operations.
var (
	// ErrInvalidParameter indicates bad caller input, rejected before any network I/O.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrAuthentication indicates the provider rejected the access token (401/403).
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimit indicates the provider quota has been exceeded (429).
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrUpstream indicates any other provider failure, including transport errors.
	ErrUpstream = errors.New("upstream provider error")
	// ErrMalformedResponse indicates the provider body could not be parsed into contours.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRender indicates a contour geometry that cannot be drawn.
	ErrRender = errors.New("render error")
)

// Provider defines the interface for isochrone providers.
type Provider interface {
	// Isochrones computes one contour polygon per requested contour value.
	Isochrones(ctx context.Context, q Query) (*Result, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Profile is the mode of travel used for reachability.
type Profile string

const (
	ProfileDriving        Profile = "driving"
	ProfileDrivingTraffic Profile = "driving-traffic"
	ProfileWalking        Profile = "walking"
	ProfileCycling        Profile = "cycling"
)

// Profiles lists every supported profile.
var Profiles = []Profile{ProfileDriving, ProfileDrivingTraffic, ProfileWalking, ProfileCycling}

// ParseProfile converts a profile name into a Profile.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", invalid("INVALID_PROFILE", fmt.Sprintf("unknown profile %q", s))
	}
	return p, nil
}

// Valid reports whether p is a supported profile.
func (p Profile) Valid() bool {
	for _, known := range Profiles {
		if p == known {
			return true
		}
	}
	return false
}

// ContourType selects whether contour values are travel times or travel distances.
type ContourType string

const (
	ContourTime     ContourType = "time"
	ContourDistance ContourType = "distance"
)

// ParseContourType converts a contour type name into a ContourType.
func ParseContourType(s string) (ContourType, error) {
	switch ContourType(strings.ToLower(strings.TrimSpace(s))) {
	case ContourTime:
		return ContourTime, nil
	case ContourDistance:
		return ContourDistance, nil
	}
	return "", invalid("INVALID_CONTOUR_TYPE", fmt.Sprintf("unknown contour type %q", s))
}

// Units selects the measurement system for distance contours.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ParseUnits converts a units name into Units. An empty string means metric.
func ParseUnits(s string) (Units, error) {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case UnitsMetric, "":
		return UnitsMetric, nil
	case UnitsImperial:
		return UnitsImperial, nil
	}
	return "", invalid("INVALID_UNITS", fmt.Sprintf("unknown units %q", s))
}

// ParseValues converts a comma-separated list such as "5,10,15" into
// contour values. Ordering and range checks are left to Query.Validate.
func ParseValues(s string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour value %q is not a number", field))
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, invalid("MISSING_CONTOURS", "at least one contour value is required")
	}
	return out, nil
}

// ParseColors splits a comma-separated color list. An empty string yields nil.
func ParseColors(s string) []string {
	var out []string
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

// Limits imposed by the isochrone API.
const (
	MaxContours      = 4
	MaxMinutes       = 60
	MaxMeters        = 100000
	MetersPerMile    = 1609.34
	maxExcerptLength = 256
)

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Query describes a single isochrone or isodistance request.
type Query struct {
	Origin        Coordinate
	Profile       Profile
	ContourType   ContourType
	ContourValues []float64 // Strictly increasing, in minutes, meters or miles
	Units         Units
	AccessToken   string

	// Colors optionally assigns a hex color to each contour, in request order.
	Colors []string

	// Denoise optionally discards contour polygons smaller than this
	// fraction of the largest one (0..1).
	Denoise *float64
}

// Validate checks every field of the query.
func (q *Query) Validate() error {
	if err := validateCoordinates(q.Origin); err != nil {
		return invalid("INVALID_ORIGIN", err.Error())
	}
	if !q.Profile.Valid() {
		return invalid("INVALID_PROFILE", fmt.Sprintf("unknown profile %q", q.Profile))
	}
	if q.ContourType != ContourTime && q.ContourType != ContourDistance {
		return invalid("INVALID_CONTOUR_TYPE", fmt.Sprintf("unknown contour type %q", q.ContourType))
	}
	if q.Units != "" && q.Units != UnitsMetric && q.Units != UnitsImperial {
		return invalid("INVALID_UNITS", fmt.Sprintf("unknown units %q", q.Units))
	}
	if strings.TrimSpace(q.AccessToken) == "" {
		return invalid("MISSING_ACCESS_TOKEN", "access token is required")
	}
	if len(q.ContourValues) == 0 {
		return invalid("MISSING_CONTOURS", "at least one contour value is required")
	}
	if len(q.ContourValues) > MaxContours {
		return invalid("TOO_MANY_CONTOURS", fmt.Sprintf("at most %d contour values are allowed, got %d", MaxContours, len(q.ContourValues)))
	}

	for i, v := range q.ContourValues {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour value %v must be positive", v))
		}
		if i > 0 && v <= q.ContourValues[i-1] {
			return invalid("UNORDERED_CONTOURS", "contour values must be strictly increasing")
		}
	}

	apiValues := q.APIValues()
	for i, v := range q.ContourValues {
		switch {
		case q.ContourType == ContourTime && v != math.Trunc(v):
			return invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour minutes %v must be whole numbers", v))
		case q.ContourType == ContourTime && v > MaxMinutes:
			return invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour minutes %v exceed %d", v, MaxMinutes))
		case q.ContourType == ContourDistance && q.units() == UnitsMetric && v != math.Trunc(v):
			return invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour meters %v must be whole numbers", v))
		case q.ContourType == ContourDistance && apiValues[i] > MaxMeters:
			return invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour distance %v exceeds %d meters", v, MaxMeters))
		case apiValues[i] < 1:
			return invalid("INVALID_CONTOUR_VALUE", fmt.Sprintf("contour value %v rounds to zero", v))
		case i > 0 && apiValues[i] <= apiValues[i-1]:
			return invalid("UNORDERED_CONTOURS", fmt.Sprintf("contour values %v and %v convert to the same distance", q.ContourValues[i-1], v))
		}
	}

	if len(q.Colors) > 0 {
		if len(q.Colors) != len(q.ContourValues) {
			return invalid("INVALID_COLORS", fmt.Sprintf("expected %d colors, got %d", len(q.ContourValues), len(q.Colors)))
		}
		for _, c := range q.Colors {
			if !isHexColor(NormalizeColor(c)) {
				return invalid("INVALID_COLORS", fmt.Sprintf("color %q is not a 6-digit hex value", c))
			}
		}
	}

	if q.Denoise != nil && (*q.Denoise < 0 || *q.Denoise > 1) {
		return invalid("INVALID_DENOISE", "denoise must be between 0 and 1")
	}

	return nil
}

// APIValues returns the contour values in the units the API expects:
// whole minutes for time contours and whole meters for distance contours.
func (q *Query) APIValues() []int {
	out := make([]int, len(q.ContourValues))
	for i, v := range q.ContourValues {
		if q.ContourType == ContourDistance && q.units() == UnitsImperial {
			out[i] = int(math.Round(v * MetersPerMile))
			continue
		}
		out[i] = int(math.Round(v))
	}
	return out
}

// UnitLabel returns the label used for contour values of this query.
func (q *Query) UnitLabel() string {
	return unitLabel(q.ContourType, q.units())
}

func (q *Query) units() Units {
	if q.Units == "" {
		return UnitsMetric
	}
	return q.Units
}

// Contour is a single threshold value and the polygon reachable within it.
type Contour struct {
	Value   float64      // Threshold in query units (minutes, meters or miles)
	Meters  int          // Threshold sent to the API for distance contours
	Color   string       // Hex color without '#', may be empty
	Polygon []Coordinate // Closed outer ring, lat/lon
}

// Result is the ordered set of contours computed for a query.
type Result struct {
	ID          string // Caller-assigned label, used by batch runs
	Origin      Coordinate
	Profile     Profile
	ContourType ContourType
	Units       Units
	Contours    []Contour
	Provider    string
	FetchedAt   time.Time
}

// Label returns the unit label for the result's contour values.
func (r *Result) Label() string {
	units := r.Units
	if units == "" {
		units = UnitsMetric
	}
	return unitLabel(r.ContourType, units)
}

// FormatValue formats a contour value for display, e.g. "15 minutes".
func (r *Result) FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + r.Label()
}

func unitLabel(t ContourType, u Units) string {
	switch {
	case t == ContourTime:
		return "minutes"
	case u == UnitsImperial:
		return "miles"
	default:
		return "meters"
	}
}

// Error provides detailed error information from isochrone operations.
type Error struct {
	Provider   string // Provider that generated the error
	Code       string // Machine-readable error code
	Message    string // Human-readable error message
	StatusCode int    // Upstream HTTP status, 0 if none
	Excerpt    string // Leading bytes of the upstream body, for diagnosis
	Err        error  // Underlying sentinel error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Excerpt truncates an upstream body for inclusion in errors. The cut never
// splits a UTF-8 sequence and invalid bytes are replaced.
func Excerpt(body []byte) string {
	if len(body) <= maxExcerptLength {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	cut := maxExcerptLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return strings.ToValidUTF8(string(body[:cut]), "\uFFFD") + "..."
}

// NormalizeColor strips a leading '#' and lowercases a hex color.
func NormalizeColor(c string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}

func isHexColor(c string) bool {
	if len(c) != 6 {
		return false
	}
	for _, r := range c {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func invalid(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     ErrInvalidParameter,
	}
}

// validateCoordinates checks if coordinates are within valid ranges.
func validateCoordinates(c Coordinate) error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}
