package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acepenergy/acep/pkg/metrics"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

var testNow = time.Date(2025, time.March, 1, 3, 0, 0, 0, time.UTC)

// newTestServer returns a Server backed by a fresh in-memory sqlite database.
func newTestServer(t *testing.T) (*Server, *storage.SQLProvider) {
	t.Helper()
	db, err := storage.NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Server{
		storage:         db,
		serverName:      "acep-test",
		sessionSecret:   []byte(strings.Repeat("s", 32)),
		sessionDuration: time.Hour,
		now:             func() time.Time { return testNow },
	}, db
}

func createTestUser(t *testing.T, db storage.Database, id string) types.User {
	t.Helper()
	u := types.User{
		ID:        id,
		Email:     id + "@example.com",
		FullName:  id,
		Role:      types.RoleUser,
		CreatedAt: testNow,
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func withUser(r *http.Request, u types.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userContextKey, u))
}

// jsonRequest builds a request whose body is v encoded as JSON. A string v is
// sent as-is.
func jsonRequest(method, target string, v any) *http.Request {
	var body io.Reader
	switch b := v.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		body = bytes.NewReader(raw)
	}
	return httptest.NewRequest(method, target, body)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.setupHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "acep-test", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestSetupHandler(t *testing.T) {
	metrics.Init()
	s, db := newTestServer(t)
	h := s.setupHandler()

	t.Run("Unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/tools", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Authenticated Route", func(t *testing.T) {
		u := createTestUser(t, db, "wired")
		token, _, err := s.newSession(u.ID)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/tools", nil)
		req.AddCookie(&http.Cookie{Name: authTokenCookie, Value: token})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("Unknown Route", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `acep_http_requests_total{code="200",route="GET /api/tools"}`)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	h := metricsMiddleware("GET /x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, "bad thing", http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"bad thing"}`, w.Body.String())
}
