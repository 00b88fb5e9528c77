package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebox/internal/auth"
	"timebox/internal/handler"
	"timebox/internal/metrics"
	"timebox/internal/middleware"
	"timebox/internal/model"
	"timebox/internal/store"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.OpenLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)

	reg := prometheus.NewRegistry()
	backend := store.WithMetrics(st, metrics.NewStore(reg))
	iss := auth.NewIssuer("secret", "timebox")
	return NewRouter(Deps{
		Planner:  handler.New(backend, iss, nil),
		Tokens:   iss,
		Gatherer: reg,
	})
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, email string) sessionResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/register", "",
		`{"email":"`+email+`","password":"testpass123","name":"Test User"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func TestHealth(t *testing.T) {
	rec := do(t, newRouter(t), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRegisterSetsCookies(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, http.MethodPost, "/auth/register", "",
		`{"email":"c@test.com","password":"testpass123","name":"C"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
		assert.True(t, c.HttpOnly)
	}
	assert.True(t, names[middleware.AccessCookie])
	assert.True(t, names[refreshCookie])
}

func TestRegisterValidation(t *testing.T) {
	h := newRouter(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad email", `{"email":"nope","password":"testpass123","name":"X"}`, "email must be a valid email"},
		{"short password", `{"email":"a@b.com","password":"short","name":"X"}`, "password must be at least 8 characters"},
		{"missing name", `{"email":"a@b.com","password":"testpass123"}`, "name is required"},
		{"unknown field", `{"email":"a@b.com","password":"testpass123","name":"X","admin":true}`, "invalid JSON body"},
		{"not json", `{`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	h := newRouter(t)
	register(t, h, "dup@test.com")
	rec := do(t, h, http.MethodPost, "/auth/register", "",
		`{"email":"dup@test.com","password":"testpass123","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	h := newRouter(t)
	register(t, h, "login@test.com")

	rec := do(t, h, http.MethodPost, "/auth/login", "", `{"email":"login@test.com","password":"testpass123"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"email":"login@test.com","password":"wrongpass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestPlanLifecycle(t *testing.T) {
	h := newRouter(t)
	s := register(t, h, "plan@test.com")

	rec := do(t, h, http.MethodGet, "/api/v1/plans/2024-05-02", s.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got planResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Found)
	assert.Equal(t, model.EmptyDayPlan(), got.Plan)

	rec = do(t, h, http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token,
		`{"topPriorities":["A","B","C"],"brainDump":"x","timeSlotTasks":{"9":{"00":"call"}}}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// notes only
	rec = do(t, h, http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"brainDump":"y"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/plans/2024-05-01", s.Token, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Found)
	assert.Equal(t, model.DayPlan{
		TopPriorities: [3]string{"A", "B", "C"},
		BrainDump:     "y",
		TimeSlotTasks: model.TimeSlots{9: {TopOfHour: "call"}},
	}, got.Plan)
}

func TestPlanErrors(t *testing.T) {
	h := newRouter(t)
	s := register(t, h, "err@test.com")

	tests := []struct {
		name, method, path, token, body string
		code                            int
	}{
		{"no token", http.MethodGet, "/api/v1/plans/2024-05-01", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/plans/2024-05-01", "junk", "", http.StatusUnauthorized},
		{"bad date", http.MethodGet, "/api/v1/plans/May-1", s.Token, "", http.StatusBadRequest},
		{"hour out of range", http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"timeSlotTasks":{"24":{"00":"x"}}}`, http.StatusBadRequest},
		{"two priorities", http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"topPriorities":["A","B"]}`, http.StatusBadRequest},
		{"four priorities", http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"topPriorities":["A","B","C","D"]}`, http.StatusBadRequest},
		{"notes too long", http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"brainDump":"` + strings.Repeat("a", 20001) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestPriorityCountIsExact(t *testing.T) {
	h := newRouter(t)
	s := register(t, h, "prio@test.com")

	rec := do(t, h, http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"topPriorities":["A","B"],"brainDump":"kept out"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"toppriorities must have 3 entries"}`, rec.Body.String())

	// nothing from the rejected body was stored
	rec = do(t, h, http.MethodGet, "/api/v1/plans/2024-05-01", s.Token, "")
	var got planResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Found)

	rec = do(t, h, http.MethodPatch, "/api/v1/plans/2024-05-01", s.Token, `{"topPriorities":["A","",""]}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func TestRefreshAndLogout(t *testing.T) {
	h := newRouter(t)
	s := register(t, h, "rl@test.com")

	rec := do(t, h, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+s.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var next sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEqual(t, s.RefreshToken, next.RefreshToken)

	// the cookie works too
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: next.RefreshToken})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var third sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &third))

	rec = do(t, h, http.MethodPost, "/auth/logout", third.Token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+third.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newRouter(t)
	s := register(t, h, "m@test.com")
	do(t, h, http.MethodGet, "/api/v1/plans/2024-05-01", s.Token, "")

	rec := do(t, h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("timebox_store_plan_operations_total")), rec.Body.String())
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	st, err := store.OpenLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	iss := auth.NewIssuer("secret", "timebox")
	h := NewRouter(Deps{
		Planner: handler.New(st, iss, nil),
		Tokens:  iss,
		Limiter: middleware.NewRateLimiter(ctx, 0.001, 1),
	})

	body := `{"email":"x@test.com","password":"testpass123"}`
	first := do(t, h, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, first.Code)
	second := do(t, h, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
