package render

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/pkg/polyline"
)

// Limits of the Mapbox Static Images API.
const (
	maxStaticDimension = 1280
	maxStaticURLLength = 8192
)

// StaticOptions configures a Mapbox Static Images URL.
type StaticOptions struct {
	AccessToken string

	// BaseURL defaults to https://api.mapbox.com.
	BaseURL string

	// Username and StyleID select the map style, default mapbox/light-v11.
	Username string
	StyleID  string

	// Width and Height in pixels, default 800x600, at most 1280 each.
	Width  int
	Height int

	// Retina requests a @2x image.
	Retina bool

	// Padding around the auto-fitted overlays in pixels, default 10.
	Padding int

	// Palette colors contours without a color of their own (optional).
	Palette []string
}

func (o *StaticOptions) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.mapbox.com"
	}
	if o.Username == "" {
		o.Username = "mapbox"
	}
	if o.StyleID == "" {
		o.StyleID = "light-v11"
	}
	if o.Width == 0 {
		o.Width = 800
	}
	if o.Height == 0 {
		o.Height = 600
	}
	if o.Padding == 0 {
		o.Padding = FitPadding
	}
}

// StaticImageURL builds a Mapbox Static Images URL showing every contour of
// result as a filled path overlay plus a pin at the origin. The image is
// auto-fitted to the overlays. No request is made.
//
// Contours with empty rings are left out and reported as ErrRender; the URL
// is still returned as long as at least one contour could be drawn.
func StaticImageURL(result *isochrone.Result, opts StaticOptions) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: no result to render", isochrone.ErrRender)
	}

	opts.applyDefaults()
	if strings.TrimSpace(opts.AccessToken) == "" {
		return "", &isochrone.Error{Code: "MISSING_ACCESS_TOKEN", Message: "access token is required", Err: isochrone.ErrInvalidParameter}
	}
	if opts.Width < 1 || opts.Width > maxStaticDimension || opts.Height < 1 || opts.Height > maxStaticDimension {
		return "", &isochrone.Error{
			Code:    "INVALID_SIZE",
			Message: fmt.Sprintf("image size %dx%d outside 1..%d", opts.Width, opts.Height, maxStaticDimension),
			Err:     isochrone.ErrInvalidParameter,
		}
	}

	r := NewRenderer(Config{Palette: opts.Palette})
	overlays := make([]string, 0, len(result.Contours)+1)
	var errs []error

	for _, i := range outerFirst(result.Contours) {
		c := result.Contours[i]
		ring, err := closedRing(c)
		if err != nil {
			errs = append(errs, &isochrone.Error{
				Code:    "EMPTY_RING",
				Message: fmt.Sprintf("contour %s: %v", result.FormatValue(c.Value), err),
				Err:     isochrone.ErrRender,
			})
			continue
		}

		color := r.colorFor(i, c)
		overlays = append(overlays, fmt.Sprintf("path-%d+000000-1+%s-%s(%s)",
			outlineWeight,
			color,
			strconv.FormatFloat(defaultFillOpacity, 'f', -1, 64),
			url.QueryEscape(polyline.Encode(orb.LineString(ring))),
		))
	}

	if len(overlays) == 0 {
		errs = append(errs, fmt.Errorf("%w: no drawable contours", isochrone.ErrRender))
		return "", errors.Join(errs...)
	}

	overlays = append(overlays, fmt.Sprintf("pin-s+555555(%s,%s)",
		strconv.FormatFloat(result.Origin.Lon, 'f', -1, 64),
		strconv.FormatFloat(result.Origin.Lat, 'f', -1, 64),
	))

	size := fmt.Sprintf("%dx%d", opts.Width, opts.Height)
	if opts.Retina {
		size += "@2x"
	}

	query := url.Values{}
	query.Set("padding", strconv.Itoa(opts.Padding))
	query.Set("access_token", opts.AccessToken)

	staticURL := fmt.Sprintf("%s/styles/v1/%s/%s/static/%s/auto/%s?%s",
		strings.TrimRight(opts.BaseURL, "/"),
		opts.Username,
		opts.StyleID,
		strings.Join(overlays, ","),
		size,
		query.Encode(),
	)

	if len(staticURL) > maxStaticURLLength {
		errs = append(errs, &isochrone.Error{
			Code:    "URL_TOO_LONG",
			Message: fmt.Sprintf("static image URL is %d bytes, limit is %d", len(staticURL), maxStaticURLLength),
			Err:     isochrone.ErrRender,
		})
		return "", errors.Join(errs...)
	}

	return staticURL, errors.Join(errs...)
}
