package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveAdmin(t *testing.T, secret, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "ops@example.com", claims.Subject)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWTRejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "disabled", secret: "", header: "Bearer " + signedAdminToken(t, "secret", adminClaims())},
		{name: "missing header", secret: "secret"},
		{name: "not bearer", secret: "secret", header: "Basic abc"},
		{name: "wrong secret", secret: "secret", header: "Bearer " + signedAdminToken(t, "wrong", adminClaims())},
		{name: "expired", secret: "secret", header: "Bearer " + signedAdminToken(t, "secret", func() jwt.RegisteredClaims {
			c := adminClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return c
		}())},
		{name: "no expiry", secret: "secret", header: "Bearer " + signedAdminToken(t, "secret", jwt.RegisteredClaims{Subject: "ops@example.com"})},
		{name: "no subject", secret: "secret", header: "Bearer " + signedAdminToken(t, "secret", func() jwt.RegisteredClaims {
			c := adminClaims()
			c.Subject = ""
			return c
		}())},
		{name: "foreign audience", secret: "secret", header: "Bearer " + signedAdminToken(t, "secret", func() jwt.RegisteredClaims {
			c := adminClaims()
			c.Audience = jwt.ClaimStrings{"widget"}
			return c
		}())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := serveAdmin(t, tt.secret, tt.header)
			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAdminJWTAcceptsValidToken(t *testing.T) {
	rec, called := serveAdmin(t, "secret", "Bearer "+signedAdminToken(t, "secret", adminClaims()))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)

	c := adminClaims()
	c.Audience = jwt.ClaimStrings{AdminAudience}
	rec, called = serveAdmin(t, "secret", "bearer "+signedAdminToken(t, "secret", c))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminJWTRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, adminClaims())
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	rec, called := serveAdmin(t, "secret", "Bearer "+signed)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func adminClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
}

func signedAdminToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
