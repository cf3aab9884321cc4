package middleware

import (
	"net/http"
	"strings"
)

// CORSConfig configures Cross-Origin Resource Sharing (CORS) policies.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// CORSMiddleware adds CORS headers to every response and answers preflight
// requests. Preflights are answered before any request validation runs, so a
// browser always gets a successful OPTIONS response even for requests the
// handler would later reject.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	allowAllOrigins := false
	allowedOrigins := make(map[string]struct{})
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAllOrigins = true
			break
		}
		allowedOrigins[origin] = struct{}{}
	}

	methodsHeader := strings.Join(cfg.AllowedMethods, ", ")
	headersHeader := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowOrigin := allowAllOrigins
			if !allowAllOrigins && origin != "" {
				_, allowOrigin = allowedOrigins[origin]
			}

			if allowAllOrigins {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if allowOrigin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if allowOrigin || allowAllOrigins {
				if headersHeader != "" {
					w.Header().Set("Access-Control-Allow-Headers", headersHeader)
				}
				if methodsHeader != "" {
					w.Header().Set("Access-Control-Allow-Methods", methodsHeader)
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
