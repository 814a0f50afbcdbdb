package isochrone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/isopleth/isopleth/internal/telemetry"
)

const tracerName = "github.com/isopleth/isopleth/internal/isochrone"

// ServiceConfig holds configuration for the isochrone service.
type ServiceConfig struct {
	// Provider is the isochrone data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records provider call metrics (optional).
	Metrics *telemetry.ProviderMetrics
}

// Service runs isochrone queries against a provider, one call at a time.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	metrics  *telemetry.ProviderMetrics
	tracer   trace.Tracer
}

// NewService creates a new isochrone service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer(tracerName),
	}
}

// Origin is a labelled starting point for batch runs.
type Origin struct {
	ID         string
	Coordinate Coordinate
}

// Isochrones computes the contours for a single query.
func (s *Service) Isochrones(ctx context.Context, q Query) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "isochrone.Isochrones",
		trace.WithAttributes(
			attribute.String("isochrone.provider", s.provider.Name()),
			attribute.String("isochrone.profile", string(q.Profile)),
			attribute.String("isochrone.contour_type", string(q.ContourType)),
			attribute.Int("isochrone.contour_count", len(q.ContourValues)),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := s.provider.Isochrones(ctx, q)
	duration := time.Since(start)

	contours := 0
	if result != nil {
		contours = len(result.Contours)
	}
	s.metrics.RecordRequest(s.provider.Name(), "isochrones", duration, contours, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		event := s.logger.Error()
		if errors.Is(err, ErrInvalidParameter) {
			event = s.logger.Warn()
		}
		event.Err(err).
			Str("provider", s.provider.Name()).
			Str("profile", string(q.Profile)).
			Float64("origin_lat", q.Origin.Lat).
			Float64("origin_lon", q.Origin.Lon).
			Dur("duration", duration).
			Msg("failed to fetch isochrones")
		return nil, err
	}

	s.logger.Info().
		Str("provider", s.provider.Name()).
		Str("profile", string(q.Profile)).
		Int("contours", contours).
		Dur("duration", duration).
		Msg("fetched isochrones")

	return result, nil
}

// Batch computes the contours of q for each origin in turn.
// A failing origin does not stop the others; all failures are joined
// into the returned error and the successful results are still returned.
func (s *Service) Batch(ctx context.Context, q Query, origins []Origin) ([]*Result, error) {
	results := make([]*Result, 0, len(origins))
	var errs []error

	for _, origin := range origins {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		oq := q
		oq.Origin = origin.Coordinate

		result, err := s.Isochrones(ctx, oq)
		if err != nil {
			errs = append(errs, fmt.Errorf("origin %s: %w", origin.ID, err))
			continue
		}
		result.ID = origin.ID
		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
