package ui

import (
	"net/http"
	"strconv"
	"strings"

	"grimm.is/hearth/internal/clock"
	"grimm.is/hearth/internal/settings"
)

const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
	"connect-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline';"

// IsHTTPS reports whether the request reached the panel over TLS, directly
// or through a proxy that says so.
func IsHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	return strings.EqualFold(proto, "https") || strings.EqualFold(proto, "on")
}

// HSTSHeader builds the Strict-Transport-Security value from the
// system.hsts_* settings.
func HSTSHeader(st *settings.Store) string {
	maxAge := st.Int("system.hsts_maxage")
	if maxAge < 0 {
		maxAge = 0
	}
	v := "max-age=" + strconv.FormatInt(maxAge, 10)
	if st.Bool("system.hsts_incsub") {
		v += "; includeSubDomains"
	}
	if st.Bool("system.hsts_preload") {
		v += "; preload"
	}
	return v
}

// SecurityHeaders sets the no-cache and browser hardening headers on every
// response, and HSTS on TLS requests.
func SecurityHeaders(st *settings.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		now := clock.Now().UTC().Format(http.TimeFormat)

		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Last-Modified", now)
		h.Set("Expires", now)

		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-Content-Security-Policy", contentSecurityPolicy)
		h.Set("X-WebKit-CSP", contentSecurityPolicy)
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")

		if IsHTTPS(r) {
			h.Set("Strict-Transport-Security", HSTSHeader(st))
		}
		next.ServeHTTP(w, r)
	})
}
