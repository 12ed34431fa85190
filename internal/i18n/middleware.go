package i18n

import (
	"net/http"
)

// Middleware picks a language from the lang query parameter or the
// Accept-Language header and injects a printer into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept-Language")
		if q := r.URL.Query().Get("lang"); q != "" {
			accept = q
		}
		p := NewPrinter(MatchLanguage(accept))

		ctx := WithPrinter(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
