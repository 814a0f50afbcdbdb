package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/isopleth/isopleth/internal/api"
	"github.com/isopleth/isopleth/internal/api/handler"
	"github.com/isopleth/isopleth/internal/api/middleware"
	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/isochrone/mapbox"
	"github.com/isopleth/isopleth/internal/provider/resilience"
	"github.com/isopleth/isopleth/internal/render"
	"github.com/isopleth/isopleth/internal/telemetry"
)

// failingOrigin makes the fake upstream answer 503.
const failingOrigin = "4.4777,51.9244"

// upstream fakes the isochrone API: one square per requested contour around
// the requested origin, with a 503 for failingOrigin.
type upstream struct {
	calls atomic.Int32
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)

	if strings.HasSuffix(r.URL.Path, "/"+failingOrigin) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"try later"}`))
		return
	}
	if r.URL.Query().Get("access_token") != "pk.server" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized - Invalid Token"}`))
		return
	}

	segments := strings.Split(r.URL.Path, "/")
	lonLat := strings.Split(segments[len(segments)-1], ",")
	lon, _ := strconv.ParseFloat(lonLat[0], 64)
	lat, _ := strconv.ParseFloat(lonLat[1], 64)

	param := r.URL.Query().Get("contours_minutes")
	if param == "" {
		param = r.URL.Query().Get("contours_meters")
	}

	var features []string
	for i, v := range strings.Split(param, ",") {
		d := 0.01 * float64(i+1)
		ring := []float64{lon - d, lat - d, lon + d, lat - d, lon + d, lat + d, lon - d, lat + d, lon - d, lat - d}
		coords := make([]string, 0, 5)
		for j := 0; j < len(ring); j += 2 {
			coords = append(coords, "["+strconv.FormatFloat(ring[j], 'f', -1, 64)+","+strconv.FormatFloat(ring[j+1], 'f', -1, 64)+"]")
		}
		features = append(features, `{"type":"Feature","properties":{"contour":`+v+`},"geometry":{"type":"Polygon","coordinates":[[`+strings.Join(coords, ",")+`]]}}`)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`))
}

type testEnv struct {
	router   http.Handler
	upstream *upstream
	registry *resilience.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := &upstream{}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	logger := zerolog.New(io.Discard)
	registry := resilience.NewRegistry()

	client := mapbox.NewClient(mapbox.ClientConfig{
		AccessToken: "pk.server",
		BaseURL:     server.URL,
		Registry:    registry,
		Logger:      logger,
	})

	providerMetrics, err := telemetry.NewProviderMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	httpMetrics, err := middleware.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2024-01-01T00:00:00Z",
		Logger:    logger,
		Metrics:   httpMetrics,
		Service: isochrone.NewService(isochrone.ServiceConfig{
			Provider: client,
			Logger:   logger,
			Metrics:  providerMetrics,
		}),
		Renderer:  render.NewRenderer(render.Config{Logger: logger}),
		Registry:  registry,
		RateLimit: -1,
	})

	return &testEnv{router: router, upstream: up, registry: registry}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, http.NoBody))
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func TestRouter_HealthCheck(t *testing.T) {
	w := newTestEnv(t).get("/v1/ops/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.NotEmpty(t, health.Time)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	w := newTestEnv(t).get("/v1/ops/ready")

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/v1/ops/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "mapbox", status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
	assert.Nil(t, status.Providers[0].LastSuccessAt)

	// A failed upstream call degrades the provider.
	env.get("/v1/isochrones?lat=51.9244&lon=4.4777&contours=10")

	w = env.get("/v1/ops/status")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.Equal(t, models.HealthStatusDegraded, status.Providers[0].Status)
	assert.Equal(t, uint32(1), status.Providers[0].ConsecutiveFailures)
	assert.NotNil(t, status.Providers[0].LastFailureAt)
	require.NotNil(t, status.Providers[0].Message)
}

func TestRouter_GetIsochrones(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/v1/isochrones?lat=52.3676&lon=4.9041&profile=cycling&contours=10,20,30&colors=ff0000,00ff00,0000ff")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	first := fc.Features[0].Properties
	assert.Equal(t, 10.0, first["contour"])
	assert.Equal(t, "cycling", first["mode"])
	assert.Equal(t, "#ff0000", first["color"])
	assert.Equal(t, int32(1), env.upstream.calls.Load())
}

func TestRouter_GetIsochrones_ValidationError(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{"missing origin", "contours=10", "lat,lon"},
		{"bad latitude", "lat=abc&lon=4.9&contours=10", "lat,lon"},
		{"latitude out of range", "lat=95&lon=4.9&contours=10", "lat,lon"},
		{"unknown profile", "lat=52&lon=4.9&profile=boat&contours=10", "profile"},
		{"missing contours", "lat=52&lon=4.9", "contours"},
		{"too many contours", "lat=52&lon=4.9&contours=5,10,15,20,25", "contours"},
		{"minutes too large", "lat=52&lon=4.9&contours=61", "contours"},
		{"color count", "lat=52&lon=4.9&contours=5,10&colors=ff0000", "colors"},
		{"bad denoise", "lat=52&lon=4.9&contours=5&denoise=lots", "denoise"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.get("/v1/isochrones?" + tt.query)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			problem := decodeProblem(t, w)
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
			assert.Equal(t, "/v1/isochrones", problem.Instance)
			require.Len(t, problem.Errors, 1)
			assert.Equal(t, tt.field, problem.Errors[0].Field)

			// Invalid queries never reach the provider.
			assert.Zero(t, env.upstream.calls.Load())
		})
	}
}

func TestRouter_GetIsochrones_UpstreamFailure(t *testing.T) {
	w := newTestEnv(t).get("/v1/isochrones?lat=51.9244&lon=4.4777&contours=10")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, models.ProblemTypeUpstream, problem.Type)
	assert.Equal(t, "SERVER_503", problem.Code)
}

func TestRouter_BatchIsochrones(t *testing.T) {
	env := newTestEnv(t)

	body := `{
		"profile": "walking",
		"contours": [5, 10],
		"origins": [
			{"id": "amsterdam", "lat": 52.3676, "lon": 4.9041},
			{"id": "rotterdam", "lat": 51.9244, "lon": 4.4777},
			{"lat": 52.0907, "lon": 5.1214}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/isochrones/batch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rotterdam", w.Header().Get(handler.FailedOriginsHeader))

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 4)
	assert.Equal(t, "amsterdam", fc.Features[0].Properties["id"])
	assert.Equal(t, "2", fc.Features[3].Properties["id"])
	assert.Equal(t, int32(3), env.upstream.calls.Load())
}

func TestRouter_BatchIsochrones_AllFail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/isochrones/batch",
		strings.NewReader(`{"contours":[5],"origins":[{"lat":51.9244,"lon":4.4777}]}`))
	req.Header.Set("Content-Type", "application/json")

	w := newTestEnv(t).do(req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRouter_BatchIsochrones_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"invalid json", `{`, "application/json", http.StatusBadRequest},
		{"no origins", `{"contours":[5],"origins":[]}`, "application/json", http.StatusBadRequest},
		{"no contours", `{"origins":[{"lat":1,"lon":1}]}`, "application/json", http.StatusBadRequest},
		{"duplicate ids", `{"contours":[5],"origins":[{"id":"a","lat":1,"lon":1},{"id":"a","lat":2,"lon":2}]}`, "application/json", http.StatusBadRequest},
		{"wrong media type", `contours=5`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := httptest.NewRequest(http.MethodPost, "/v1/isochrones/batch", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			w := env.do(req)
			assert.Equal(t, tt.want, w.Code)
			assert.Zero(t, env.upstream.calls.Load())
		})
	}
}

func TestRouter_BatchIsochrones_TooManyOrigins(t *testing.T) {
	origins := make([]string, handler.MaxBatchOrigins+1)
	for i := range origins {
		origins[i] = `{"lat":1,"lon":1}`
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/isochrones/batch",
		strings.NewReader(`{"contours":[5],"origins":[`+strings.Join(origins, ",")+`]}`))

	w := newTestEnv(t).do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "TOO_MANY_ORIGINS")
}

func TestRouter_GetMap(t *testing.T) {
	w := newTestEnv(t).get("/v1/maps?lat=40.7128&lon=-74.0060&contours=5,10")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, middleware.MapContentSecurityPolicy, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get(handler.RenderIncompleteHeader))

	body := w.Body.String()
	assert.Contains(t, body, "leaflet")
	assert.Contains(t, body, "10 minutes")
	assert.NotContains(t, body, "pk.server")
}

func TestRouter_GetMap_Compare(t *testing.T) {
	env := newTestEnv(t)
	w := env.get("/v1/maps?lat=40.7128&lon=-74.0060&contours=5,10&compare_profile=walking")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Contains(t, body, "Isopleth Comparison")
	assert.Contains(t, body, "(walking)")
	assert.Contains(t, body, "(driving)")
	assert.Equal(t, int32(2), env.upstream.calls.Load())
}

func TestRouter_GetMap_BadCompareProfile(t *testing.T) {
	env := newTestEnv(t)
	w := env.get("/v1/maps?lat=40.7128&lon=-74.0060&contours=5&compare_profile=boat")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.upstream.calls.Load())
}

func TestRouter_JSONKeepsStrictCSP(t *testing.T) {
	w := newTestEnv(t).get("/v1/ops/health")
	assert.Equal(t, middleware.APIContentSecurityPolicy, w.Header().Get("Content-Security-Policy"))
}

func TestRouter_RateLimit(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger:    zerolog.Nop(),
		Service:   isochrone.NewService(isochrone.ServiceConfig{Provider: mapbox.NewClient(mapbox.ClientConfig{Logger: zerolog.Nop()}), Logger: zerolog.Nop()}),
		RateLimit: 1,
	})

	// The first request fails validation but still counts.
	req := httptest.NewRequest(http.MethodGet, "/v1/isochrones", http.NoBody)
	req.RemoteAddr = "203.0.113.9:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/maps", http.NoBody)
	req.RemoteAddr = "203.0.113.9:1234"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRouter_RequestID_Generated(t *testing.T) {
	w := newTestEnv(t).get("/v1/ops/health")

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")

	w := newTestEnv(t).do(req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	w := newTestEnv(t).get("/v1/nonexistent")

	assert.Equal(t, http.StatusNotFound, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, models.ProblemTypeNotFound, problem.Type)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	w := newTestEnv(t).do(httptest.NewRequest(http.MethodDelete, "/v1/ops/health", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_OpsOnlyWithoutService(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{Logger: zerolog.Nop()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Empty(t, status.Providers)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/isochrones", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_UnreachableUpstreamHidesToken(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	baseURL := closed.URL
	closed.Close()

	const token = "pk.server-secret"
	var logs strings.Builder
	logger := zerolog.New(&logs)
	registry := resilience.NewRegistry()

	client := mapbox.NewClient(mapbox.ClientConfig{
		AccessToken: token,
		BaseURL:     baseURL,
		Registry:    registry,
		Logger:      logger,
	})
	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		Logger:    logger,
		Service:   isochrone.NewService(isochrone.ServiceConfig{Provider: client, Logger: logger}),
		Registry:  registry,
		RateLimit: -1,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/isochrones?lat=52.37&lon=4.89&contours=10", http.NoBody))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, "REQUEST_FAILED", problem.Code)
	assert.NotContains(t, w.Body.String(), token)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mapbox")
	assert.NotContains(t, w.Body.String(), token)

	assert.Contains(t, logs.String(), "failed to fetch isochrones")
	assert.NotContains(t, logs.String(), token)
}

func TestRouter_RequireTLS(t *testing.T) {
	tests := []struct {
		name       string
		requireTLS bool
		status     int
	}{
		{name: "enforced", requireTLS: true, status: http.StatusForbidden},
		{name: "not enforced", requireTLS: false, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := api.NewRouter(api.RouterConfig{Logger: zerolog.Nop(), RequireTLS: tt.requireTLS})

			req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
			req.Header.Set("X-Forwarded-Proto", "http")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}
