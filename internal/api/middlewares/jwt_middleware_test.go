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

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTMiddleware(t *testing.T) {
	var seen string
	h := JWTMiddleware("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
		sub    string
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + sign(t, "other", jwt.MapClaims{"sub": "u1"}), want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + sign(t, "s3cret", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}), want: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + sign(t, "s3cret", jwt.MapClaims{"role": "x"}), want: http.StatusUnauthorized},
		{name: "sub claim", header: "Bearer " + sign(t, "s3cret", jwt.MapClaims{"sub": "u1"}), want: http.StatusNoContent, sub: "u1"},
		{name: "user_id claim", header: "Bearer " + sign(t, "s3cret", jwt.MapClaims{"user_id": "u2"}), want: http.StatusNoContent, sub: "u2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.sub, seen)
		})
	}
}
