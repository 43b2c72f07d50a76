package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

// AdminAudience is the audience admin tokens must carry when one is set.
const AdminAudience = "listing-admin"

// AdminJWT guards the lead review endpoints with an HS256 token signed by
// secret. Tokens must name a subject and, if they carry an audience, it
// must include AdminAudience.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				unauthorized(w, "admin auth disabled")
				return
			}
			tokenString, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing authorization header")
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !token.Valid || claims.Subject == "" {
				unauthorized(w, "invalid token")
				return
			}
			if len(claims.Audience) > 0 && !hasAudience(claims.Audience, AdminAudience) {
				unauthorized(w, "invalid token audience")
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
