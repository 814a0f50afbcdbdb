package middleware

import (
	"net/http"

	"github.com/isopleth/isopleth/internal/api/models"
)

// Content security policies. Map pages load Leaflet from public CDNs, run an
// inline bootstrap script and fetch CARTO basemap tiles.
const (
	APIContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
	MapContentSecurityPolicy = "default-src 'none'; " +
		"script-src 'unsafe-inline' https://unpkg.com https://cdn.jsdelivr.net; " +
		"style-src 'unsafe-inline' https://unpkg.com; " +
		"img-src data: https://unpkg.com https://*.basemaps.cartocdn.com; " +
		"frame-ancestors 'none'"
)

// SecurityHeaders adds standard security headers to all HTTP responses.
// Headers set:
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Referrer-Policy: strict-origin-when-cross-origin
//   - Permissions-Policy: geolocation=(), camera=(), microphone=()
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Enforce HTTPS for 1 year with subdomains
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		// Restrictive Content Security Policy for API
		w.Header().Set("Content-Security-Policy", APIContentSecurityPolicy)

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Disable browser features
		w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// MapAssets relaxes the Content-Security-Policy for HTML map pages.
// It must run after SecurityHeaders.
func MapAssets(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", MapContentSecurityPolicy)
		next.ServeHTTP(w, r)
	})
}

// RequireTLS returns a middleware that rejects plain HTTP requests when
// enabled. The scheme is read from X-Forwarded-Proto as set by the load
// balancer; requests without the header pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				problem := models.NewProblem(
					models.ProblemTypeTLSRequired,
					"TLS required",
					http.StatusForbidden,
					GetRequestID(r.Context()),
				)
				problem.Detail = "This endpoint requires HTTPS"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
