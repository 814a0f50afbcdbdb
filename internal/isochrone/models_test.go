package isochrone

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuery() Query {
	return Query{
		Origin:        Coordinate{Lat: 40.7128, Lon: -74.0060},
		Profile:       ProfileDriving,
		ContourType:   ContourTime,
		ContourValues: []float64{5, 10, 15},
		Units:         UnitsMetric,
		AccessToken:   "pk.test",
	}
}

func TestQuery_Validate(t *testing.T) {
	denoise := 1.5

	tests := []struct {
		name     string
		mutate   func(q *Query)
		wantCode string
	}{
		{name: "valid", mutate: func(q *Query) {}},
		{name: "valid walking distance", mutate: func(q *Query) {
			q.Profile = ProfileWalking
			q.ContourType = ContourDistance
			q.ContourValues = []float64{500, 1000}
		}},
		{name: "valid imperial miles", mutate: func(q *Query) {
			q.ContourType = ContourDistance
			q.Units = UnitsImperial
			q.ContourValues = []float64{0.5, 1.5, 3}
		}},
		{name: "empty units default to metric", mutate: func(q *Query) { q.Units = "" }},
		{name: "colors with hash", mutate: func(q *Query) { q.Colors = []string{"#FF0000", "00ff00", "#0000ff"} }},
		{name: "bad latitude", mutate: func(q *Query) { q.Origin.Lat = 91 }, wantCode: "INVALID_ORIGIN"},
		{name: "bad longitude", mutate: func(q *Query) { q.Origin.Lon = -181 }, wantCode: "INVALID_ORIGIN"},
		{name: "NaN latitude", mutate: func(q *Query) { q.Origin.Lat = math.NaN() }, wantCode: "INVALID_ORIGIN"},
		{name: "unknown profile", mutate: func(q *Query) { q.Profile = "flying" }, wantCode: "INVALID_PROFILE"},
		{name: "unknown contour type", mutate: func(q *Query) { q.ContourType = "energy" }, wantCode: "INVALID_CONTOUR_TYPE"},
		{name: "unknown units", mutate: func(q *Query) { q.Units = "nautical" }, wantCode: "INVALID_UNITS"},
		{name: "missing token", mutate: func(q *Query) { q.AccessToken = " " }, wantCode: "MISSING_ACCESS_TOKEN"},
		{name: "no contours", mutate: func(q *Query) { q.ContourValues = nil }, wantCode: "MISSING_CONTOURS"},
		{name: "too many contours", mutate: func(q *Query) { q.ContourValues = []float64{1, 2, 3, 4, 5} }, wantCode: "TOO_MANY_CONTOURS"},
		{name: "zero contour", mutate: func(q *Query) { q.ContourValues = []float64{0, 10} }, wantCode: "INVALID_CONTOUR_VALUE"},
		{name: "negative contour", mutate: func(q *Query) { q.ContourValues = []float64{-5} }, wantCode: "INVALID_CONTOUR_VALUE"},
		{name: "not increasing", mutate: func(q *Query) { q.ContourValues = []float64{10, 5} }, wantCode: "UNORDERED_CONTOURS"},
		{name: "duplicate", mutate: func(q *Query) { q.ContourValues = []float64{10, 10} }, wantCode: "UNORDERED_CONTOURS"},
		{name: "fractional minutes", mutate: func(q *Query) { q.ContourValues = []float64{2.5} }, wantCode: "INVALID_CONTOUR_VALUE"},
		{name: "minutes over limit", mutate: func(q *Query) { q.ContourValues = []float64{30, 61} }, wantCode: "INVALID_CONTOUR_VALUE"},
		{name: "meters over limit", mutate: func(q *Query) {
			q.ContourType = ContourDistance
			q.ContourValues = []float64{100001}
		}, wantCode: "INVALID_CONTOUR_VALUE"},
		{name: "miles over limit", mutate: func(q *Query) {
			q.ContourType = ContourDistance
			q.Units = UnitsImperial
			q.ContourValues = []float64{70}
		}, wantCode: "INVALID_CONTOUR_VALUE"},
		{name: "miles collapse to same meters", mutate: func(q *Query) {
			q.ContourType = ContourDistance
			q.Units = UnitsImperial
			q.ContourValues = []float64{1, 1.00005}
		}, wantCode: "UNORDERED_CONTOURS"},
		{name: "color count mismatch", mutate: func(q *Query) { q.Colors = []string{"ff0000"} }, wantCode: "INVALID_COLORS"},
		{name: "bad color", mutate: func(q *Query) { q.Colors = []string{"red", "00ff00", "0000ff"} }, wantCode: "INVALID_COLORS"},
		{name: "denoise out of range", mutate: func(q *Query) { q.Denoise = &denoise }, wantCode: "INVALID_DENOISE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery()
			tt.mutate(&q)

			err := q.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)

			var isoErr *Error
			require.True(t, errors.As(err, &isoErr))
			assert.Equal(t, tt.wantCode, isoErr.Code)
		})
	}
}

func TestQuery_APIValues(t *testing.T) {
	q := validQuery()
	assert.Equal(t, []int{5, 10, 15}, q.APIValues())

	q.ContourType = ContourDistance
	q.ContourValues = []float64{250, 1000}
	assert.Equal(t, []int{250, 1000}, q.APIValues())

	q.Units = UnitsImperial
	q.ContourValues = []float64{1, 2.5}
	assert.Equal(t, []int{1609, 4023}, q.APIValues())
}

func TestQuery_UnitLabel(t *testing.T) {
	q := validQuery()
	assert.Equal(t, "minutes", q.UnitLabel())

	q.Units = UnitsImperial
	assert.Equal(t, "minutes", q.UnitLabel(), "time contours are always minutes")

	q.ContourType = ContourDistance
	assert.Equal(t, "miles", q.UnitLabel())

	q.Units = ""
	assert.Equal(t, "meters", q.UnitLabel())
}

func TestParseProfile(t *testing.T) {
	for _, name := range []string{"driving", "Driving-Traffic", " walking ", "cycling"} {
		_, err := ParseProfile(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseProfile("cycling-regular")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestParseContourTypeAndUnits(t *testing.T) {
	ct, err := ParseContourType("Distance")
	require.NoError(t, err)
	assert.Equal(t, ContourDistance, ct)

	_, err = ParseContourType("")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	u, err := ParseUnits("")
	require.NoError(t, err)
	assert.Equal(t, UnitsMetric, u)

	u, err = ParseUnits("IMPERIAL")
	require.NoError(t, err)
	assert.Equal(t, UnitsImperial, u)

	_, err = ParseUnits("furlongs")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestParseValues(t *testing.T) {
	values, err := ParseValues(" 5, 10,15 ,")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10, 15}, values)

	values, err = ParseValues("0.5,1.25")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.25}, values)

	_, err = ParseValues("5,ten")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = ParseValues(" , ")
	var isoErr *Error
	require.ErrorAs(t, err, &isoErr)
	assert.Equal(t, "MISSING_CONTOURS", isoErr.Code)
}

func TestParseColors(t *testing.T) {
	assert.Nil(t, ParseColors(""))
	assert.Equal(t, []string{"#ff0000", "00ff00"}, ParseColors("#ff0000, 00ff00"))
}

func TestResult_FormatValue(t *testing.T) {
	r := &Result{ContourType: ContourTime}
	assert.Equal(t, "15 minutes", r.FormatValue(15))

	r = &Result{ContourType: ContourDistance, Units: UnitsImperial}
	assert.Equal(t, "2.5 miles", r.FormatValue(2.5))

	r = &Result{ContourType: ContourDistance}
	assert.Equal(t, "800 meters", r.FormatValue(800))
}

func TestError(t *testing.T) {
	err := &Error{
		Provider:   "mapbox",
		Code:       "RATE_LIMIT",
		Message:    "API rate limit exceeded",
		StatusCode: 429,
		Err:        ErrRateLimit,
	}

	assert.Equal(t, "API rate limit exceeded (status 429): rate limit exceeded", err.Error())
	assert.ErrorIs(t, err, ErrRateLimit)
	assert.NotErrorIs(t, err, ErrUpstream)

	bare := &Error{Message: "no cause"}
	assert.Equal(t, "no cause", bare.Error())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "{}", Excerpt([]byte("{}")))

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	excerpt := Excerpt(long)
	assert.Len(t, excerpt, maxExcerptLength+3)
	assert.Equal(t, "...", excerpt[len(excerpt)-3:])
}

func TestExcerpt_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes starting at offset 255, so the limit falls inside it.
	body := append([]byte(strings.Repeat("x", maxExcerptLength-1)), "é and more"...)

	excerpt := Excerpt(body)
	assert.True(t, utf8.ValidString(excerpt))
	assert.Equal(t, strings.Repeat("x", maxExcerptLength-1)+"...", excerpt)

	assert.Equal(t, "a\uFFFDb", Excerpt([]byte{'a', 0xff, 'b'}))
	assert.Equal(t, "Ω", Excerpt([]byte("Ω")))
}

func TestNormalizeColor(t *testing.T) {
	assert.Equal(t, "ff00aa", NormalizeColor(" #FF00AA "))
	assert.True(t, isHexColor(NormalizeColor("#6706ce")))
	assert.False(t, isHexColor(NormalizeColor("#fff")))
}
