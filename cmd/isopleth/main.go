// Package main provides the isopleth command: fetch isochrones for a point
// and write them as an interactive HTML map, GeoJSON or a static image URL.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/isopleth/isopleth/internal/config"
	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/isochrone/mapbox"
	"github.com/isopleth/isopleth/internal/render"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "isopleth:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	lat, lon       float64
	profile        string
	contourType    string
	contours       string
	units          string
	colors         string
	denoise        float64
	out            string
	geojson        string
	compareProfile string
	static         bool
	staticWidth    int
	staticHeight   int
	retina         bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flags := pflag.NewFlagSet("isopleth", pflag.ContinueOnError)
	flags.SortFlags = false

	flags.Float64Var(&opts.lat, "lat", 0, "origin latitude (required)")
	flags.Float64Var(&opts.lon, "lon", 0, "origin longitude (required)")
	flags.StringVar(&opts.profile, "profile", string(isochrone.ProfileDriving), "travel profile: driving, driving-traffic, walking, cycling")
	flags.StringVar(&opts.contours, "contours", "5,10,15", "comma-separated contour values, at most 4")
	flags.StringVar(&opts.contourType, "type", string(isochrone.ContourTime), "contour type: time (minutes) or distance")
	flags.StringVar(&opts.units, "units", string(isochrone.UnitsMetric), "distance units: metric (meters) or imperial (miles)")
	flags.StringVar(&opts.colors, "colors", "", "comma-separated hex colors, one per contour")
	flags.Float64Var(&opts.denoise, "denoise", 0, "drop polygons smaller than this fraction of the largest (0..1)")
	flags.StringVar(&opts.out, "out", "isochrone.html", "HTML map output path, empty to skip")
	flags.StringVar(&opts.geojson, "geojson", "", "GeoJSON output path (optional)")
	flags.StringVar(&opts.compareProfile, "compare-profile", "", "second profile drawn on a synchronized side-by-side map")
	flags.BoolVar(&opts.static, "static", false, "print a Mapbox Static Images URL")
	flags.IntVar(&opts.staticWidth, "static-width", 800, "static image width in pixels")
	flags.IntVar(&opts.staticHeight, "static-height", 600, "static image height in pixels")
	flags.BoolVar(&opts.retina, "retina", false, "request a @2x static image")

	flags.String("config", "", "path to a YAML config file")
	flags.String("token", "", "Mapbox access token (default $MAPBOX_ACCESS_TOKEN)")
	flags.String("base-url", "", "Mapbox API base URL")
	flags.Duration("timeout", 0, "Mapbox request timeout")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "human-readable logs")
	return flags
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	flags := newFlagSet(&opts)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if !flags.Changed("lat") || !flags.Changed("lon") {
		return errors.New("--lat and --lon are required")
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, stderr)

	q, compare, err := buildQueries(flags, opts)
	if err != nil {
		return err
	}

	client := mapbox.NewClient(mapbox.ClientConfig{
		AccessToken: cfg.Mapbox.AccessToken,
		BaseURL:     cfg.Mapbox.BaseURL,
		Timeout:     cfg.Mapbox.Timeout,
		Logger:      log,
	})
	service := isochrone.NewService(isochrone.ServiceConfig{Provider: client, Logger: log})
	renderer := render.NewRenderer(render.Config{Logger: log})

	result, err := service.Isochrones(ctx, q)
	if err != nil {
		return err
	}
	results := []*isochrone.Result{result}

	var other *isochrone.Result
	if compare != nil {
		if other, err = service.Isochrones(ctx, *compare); err != nil {
			return err
		}
		results = append(results, other)
	}

	// Everything is produced in memory first so that a failing step leaves
	// no files behind.
	var page, geo []byte
	if opts.out != "" {
		if page, err = renderMap(renderer, log, result, other); err != nil {
			return err
		}
	}
	if opts.geojson != "" {
		if geo, err = isochrone.FeatureCollection(results...).MarshalJSON(); err != nil {
			return fmt.Errorf("encoding geojson: %w", err)
		}
	}
	var staticURLs []string
	if opts.static {
		if staticURLs, err = staticImageURLs(results, opts, cfg.Mapbox, log); err != nil {
			return err
		}
	}

	if page != nil {
		if err := writeFile(opts.out, page); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "map written to %s\n", opts.out)
	}
	if geo != nil {
		if err := writeFile(opts.geojson, geo); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "geojson written to %s\n", opts.geojson)
	}
	for _, u := range staticURLs {
		fmt.Fprintln(stdout, u)
	}

	return nil
}

// buildQueries turns flags into the main query and, with --compare-profile,
// a copy of it for the second profile.
func buildQueries(flags *pflag.FlagSet, opts options) (isochrone.Query, *isochrone.Query, error) {
	q := isochrone.Query{Origin: isochrone.Coordinate{Lat: opts.lat, Lon: opts.lon}}
	var err error

	if q.Profile, err = isochrone.ParseProfile(opts.profile); err != nil {
		return q, nil, err
	}
	if q.ContourType, err = isochrone.ParseContourType(opts.contourType); err != nil {
		return q, nil, err
	}
	if q.Units, err = isochrone.ParseUnits(opts.units); err != nil {
		return q, nil, err
	}
	if q.ContourValues, err = isochrone.ParseValues(opts.contours); err != nil {
		return q, nil, err
	}
	q.Colors = isochrone.ParseColors(opts.colors)
	if flags.Changed("denoise") {
		d := opts.denoise
		q.Denoise = &d
	}

	if opts.compareProfile == "" {
		return q, nil, nil
	}
	profile, err := isochrone.ParseProfile(opts.compareProfile)
	if err != nil {
		return q, nil, err
	}
	cq := q
	cq.Profile = profile
	return q, &cq, nil
}

// renderMap renders one map, or a dual map when other is set, into an HTML
// page. Contours that cannot be drawn are logged and left out.
func renderMap(renderer *render.Renderer, log zerolog.Logger, result, other *isochrone.Result) ([]byte, error) {
	var write func(io.Writer) error
	if other == nil {
		m, err := renderer.Render(result, nil)
		if m == nil {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).Msg("map is missing contours")
		}
		write = m.WriteHTML
	} else {
		dual, err := renderer.RenderDual(result, other)
		if dual == nil {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).Msg("map is missing contours")
		}
		write = dual.WriteHTML
	}

	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// staticImageURLs builds one Static Images URL per result. A URL that had to
// leave contours out is kept with a warning; a result with no usable URL
// fails the run.
func staticImageURLs(results []*isochrone.Result, opts options, mb config.MapboxConfig, log zerolog.Logger) ([]string, error) {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		staticURL, err := render.StaticImageURL(r, render.StaticOptions{
			AccessToken: mb.AccessToken,
			BaseURL:     mb.BaseURL,
			Width:       opts.staticWidth,
			Height:      opts.staticHeight,
			Retina:      opts.retina,
		})
		if staticURL == "" {
			return nil, fmt.Errorf("static image for %s: %w", r.Profile, err)
		}
		if err != nil {
			log.Warn().Err(err).Str("profile", string(r.Profile)).Msg("static image is missing contours")
		}
		urls = append(urls, staticURL)
	}
	return urls, nil
}

func writeFile(path string, body []byte) error {
	if err := os.WriteFile(path, body, 0o644); err != nil { //nolint:gosec // exported maps are meant to be shared
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).
		Level(cfg.ZerologLevel()).
		With().
		Timestamp().
		Str("service", "isopleth").
		Str("version", Version).
		Logger()
}
