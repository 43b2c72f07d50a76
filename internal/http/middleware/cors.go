package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-User-Phone, X-Request-ID"
	corsAllowedMethods = "GET, POST, OPTIONS"
)

// CORS lets the widget be embedded on listed origins.
// If allowedOrigins contains "*", any Origin is echoed back.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			allow[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			permitted := origin != "" && (allowAny || hasOrigin(allow, origin))
			if permitted {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				w.Header().Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				if !permitted {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasOrigin(allow map[string]struct{}, origin string) bool {
	_, ok := allow[strings.TrimRight(origin, "/")]
	return ok
}
