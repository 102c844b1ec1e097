package httpx

import (
	"net/http"
	"strings"
	"time"
)

type Middleware func(http.Handler) http.Handler

func Chain(h http.Handler, m ...Middleware) http.Handler {
	// Apply in reverse so Chain(h, a, b) becomes a(b(h)).
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func WithBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds every request except those whose path has one of the
// exempt suffixes (long polls manage their own deadline).
func WithTimeout(d time.Duration, exemptSuffixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, d, "request timed out")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, s := range exemptSuffixes {
				if strings.HasSuffix(r.URL.Path, s) {
					next.ServeHTTP(w, r)
					return
				}
			}
			bounded.ServeHTTP(w, r)
		})
	}
}
