package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, X-Trace-ID"
)

// CORS answers preflight requests and decorates responses for allowed origins.
// "*" allows every origin; an entry like "*.example.com" allows subdomains.
type CORS struct {
	exact    map[string]struct{}
	suffixes []string
	allowAll bool
}

func NewCORS(allowedOrigins []string) *CORS {
	c := &CORS{exact: make(map[string]struct{})}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "":
		case origin == "*":
			c.allowAll = true
		case strings.HasPrefix(origin, "*."):
			c.suffixes = append(c.suffixes, origin[1:])
		default:
			c.exact[origin] = struct{}{}
		}
	}
	return c
}

func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && c.allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", "X-Trace-ID")
			h.Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) allowed(origin string) bool {
	if c.allowAll {
		return true
	}
	if _, ok := c.exact[origin]; ok {
		return true
	}
	for _, suffix := range c.suffixes {
		if strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
