// Package security sets response headers for the JSON API and resolves the
// client address behind trusted proxies.
package security

import (
	"fmt"
	"net/http"
)

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	CSP                 string
	HSTSMaxAge          int
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CacheControl        string
}

// DefaultHeadersConfig returns headers for an API that never serves HTML.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:          31536000,
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CacheControl:        "no-store",
	}
}

// Headers returns middleware applying config to every response.
func Headers(config HeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", config.XContentTypeOptions)
			h.Set("X-Frame-Options", config.XFrameOptions)
			h.Set("Referrer-Policy", config.ReferrerPolicy)
			if config.CSP != "" {
				h.Set("Content-Security-Policy", config.CSP)
			}
			if config.CacheControl != "" {
				h.Set("Cache-Control", config.CacheControl)
			}
			// HSTS only means something over TLS
			if r.TLS != nil && config.HSTSMaxAge > 0 {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
