package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybrief/skybrief/internal/api/middleware"
	"github.com/skybrief/skybrief/internal/api/models"
	"github.com/skybrief/skybrief/internal/auth"
)

func newTokens(t *testing.T, clock clockwork.Clock) *auth.TokenService {
	t.Helper()
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: "middleware-test-signing-key",
		TTL:        time.Hour,
		Clock:      clock,
	})
}

func TestOperatorAuth(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC))
	tokens := newTokens(t, clock)

	admin, _, err := tokens.Issue("ops@example.com", auth.ScopeCacheAdmin)
	require.NoError(t, err)
	viewer, _, err := tokens.Issue("viewer@example.com")
	require.NoError(t, err)

	var operator string
	handler := middleware.OperatorAuth(tokens, auth.ScopeCacheAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = middleware.GetOperator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantDetail string
	}{
		{"valid token", "Bearer " + admin, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + admin, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "missing or malformed bearer token"},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "missing or malformed bearer token"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid operator token"},
		{"missing scope", "Bearer " + viewer, http.StatusForbidden, "token lacks scope cache:admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operator = ""
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache:invalidate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ops@example.com", operator)
				return
			}

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantDetail, problem.Detail)
			assert.Equal(t, "/v1/admin/cache:invalidate", problem.Instance)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestOperatorAuth_ExpiredToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC))
	tokens := newTokens(t, clock)
	token, _, err := tokens.Issue("ops@example.com", auth.ScopeCacheAdmin)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	handler := middleware.OperatorAuth(tokens, auth.ScopeCacheAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache:invalidate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "operator token has expired", problem.Detail)
}
