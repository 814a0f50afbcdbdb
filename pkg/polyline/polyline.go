// Package polyline encodes and decodes the encoded polyline format used by
// Mapbox static image path overlays.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// DefaultPrecision is the number of decimal places used by Mapbox and Google.
const DefaultPrecision = 5

// ErrTruncated is returned when an encoded string ends in the middle of a value.
var ErrTruncated = errors.New("polyline: truncated input")

// Encode encodes a line in lon/lat order with the default precision.
func Encode(ls orb.LineString) string {
	return EncodePrecision(ls, DefaultPrecision)
}

// EncodePrecision encodes a line using the given number of decimal places.
// Latitude is written before longitude for each point.
func EncodePrecision(ls orb.LineString, precision int) string {
	if len(ls) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	buf := make([]byte, 0, len(ls)*6)
	prevLat, prevLon := 0, 0

	for _, p := range ls {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

// Decode decodes a string encoded with the default precision.
func Decode(encoded string) (orb.LineString, error) {
	return DecodePrecision(encoded, DefaultPrecision)
}

// DecodePrecision decodes a string encoded with the given number of decimal places.
func DecodePrecision(encoded string, precision int) (orb.LineString, error) {
	if encoded == "" {
		return nil, nil
	}

	factor := math.Pow10(precision)
	var ls orb.LineString
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		latDelta, next, err := readValue(encoded, index)
		if err != nil {
			return nil, err
		}
		lonDelta, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next

		lat += latDelta
		lon += lonDelta
		ls = append(ls, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return ls, nil
}

func readValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

func appendValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
