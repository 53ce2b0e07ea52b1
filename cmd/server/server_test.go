package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/config"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.New()
	cfg.Server.DataDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	srv, err := newServer(context.Background(), cfg, monitoring.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return setupRouter(srv)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func evidence(person, skill, kind string, value float64, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"person_id":   person,
		"skill_name":  skill,
		"metric_kind": kind,
		"value":       value,
		"observed_at": at.Format(time.RFC3339),
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "normal", body["level"])
	assert.Equal(t, "disabled", body["classifier_breaker"])
	assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	services, ok := body["services"].([]interface{})
	require.True(t, ok)
	require.Len(t, services, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(t, nil)

	doJSON(t, r, http.MethodGet, "/health", nil)
	w := doJSON(t, r, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "teamsignal_http_requests_total")
	assert.Contains(t, w.Body.String(), `route="/health"`)
}

func TestSkillScoringFlow(t *testing.T) {
	r := newTestServer(t, nil)
	day := time.Now().UTC().Add(-24 * time.Hour)

	w := doJSON(t, r, http.MethodPost, "/v1/skills/score", map[string]interface{}{
		"evidence": []interface{}{
			evidence("ann", "Go", "commit_count", 40, day),
			evidence("ann", "SQL", "review_count", 5, day),
			evidence("bob", "Go", "commit_count", 5, day),
			evidence("bob", "Go", "peer_rating", -2, day),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, float64(1), body["invalid_records"])
	people := body["people"].([]interface{})
	require.Len(t, people, 2)
	matrix := body["matrix"].(map[string]interface{})
	assert.Equal(t, []interface{}{"ann", "bob"}, matrix["members"])

	t.Run("stored scores are served", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/v1/people/ann/skills?require=Go:9.5,Rust:3", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Len(t, body["skills"], 2)
		assert.Len(t, body["gaps"], 2)
	})

	t.Run("unknown person", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/v1/people/nobody/skills", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decode(t, w)["category"])
	})

	t.Run("malformed requirement", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/v1/people/ann/skills?require=Go", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSingleSkillScoring(t *testing.T) {
	r := newTestServer(t, nil)
	day := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name     string
		body     map[string]interface{}
		wantCode int
	}{
		{
			name: "one person",
			body: map[string]interface{}{
				"skill": "go",
				"evidence": []interface{}{
					evidence("ann", "Go", "commit_count", 10, day),
					evidence("ann", "SQL", "commit_count", 10, day),
				},
			},
			wantCode: http.StatusOK,
		},
		{
			name: "invalid record for the skill",
			body: map[string]interface{}{
				"skill":    "Go",
				"evidence": []interface{}{evidence("ann", "Go", "lines_of_code", 10, day)},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "two people",
			body: map[string]interface{}{
				"skill": "Go",
				"evidence": []interface{}{
					evidence("ann", "Go", "commit_count", 10, day),
					evidence("bob", "Go", "commit_count", 10, day),
				},
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/v1/skills/score", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestAnalyzeMessageEndpoint(t *testing.T) {
	r := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodPost, "/v1/sentiment/analyze", map[string]interface{}{
		"text": "Still blocked on the deploy, this is frustrating",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "heuristic", body["source"])
	assert.Equal(t, true, body["has_blocker"])

	w = doJSON(t, r, http.MethodPost, "/v1/sentiment/analyze", map[string]interface{}{"text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["category"])
}

func TestTeamSentimentFlow(t *testing.T) {
	r := newTestServer(t, nil)
	at := func(daysAgo int) string {
		return time.Now().UTC().AddDate(0, 0, -daysAgo).Format(time.RFC3339)
	}

	w := doJSON(t, r, http.MethodPost, "/v1/sentiment/team", map[string]interface{}{
		"team_id": "core",
		"messages": []interface{}{
			map[string]interface{}{"person_id": "ann", "text": "great progress, happy with the release", "occurred_at": at(2)},
			map[string]interface{}{"person_id": "bob", "text": "blocked again, stuck on the build", "occurred_at": at(3)},
			map[string]interface{}{"person_id": "bob", "text": "", "occurred_at": at(1)},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, float64(1), body["skipped_messages"])
	assert.Len(t, body["profiles"], 2)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "core", summary["team_id"])

	t.Run("risk history", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/v1/people/bob/risk?limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Len(t, body["history"], 1)
		latest := body["latest"].(map[string]interface{})
		assert.Equal(t, "core", latest["team_id"])
		assert.Equal(t, "bob", latest["person_id"])
	})

	t.Run("latest risk without limit", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/v1/people/bob/risk", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.NotContains(t, body, "history")
		latest := body["latest"].(map[string]interface{})
		assert.Equal(t, "bob", latest["person_id"])
		assert.Equal(t, "high", latest["risk_level"])
	})

	t.Run("unknown person", func(t *testing.T) {
		for _, path := range []string{"/v1/people/nobody/risk", "/v1/people/nobody/risk?limit=3"} {
			w := doJSON(t, r, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusNotFound, w.Code, path)
			assert.Equal(t, "not_found", decode(t, w)["category"], path)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/v1/people/bob/risk?limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing team", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/v1/sentiment/team", map[string]interface{}{"messages": []interface{}{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAllocationHydratesAndCaches(t *testing.T) {
	r := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodPost, "/v1/skills/score", map[string]interface{}{
		"evidence": []interface{}{
			evidence("ann", "Go", "commit_count", 80, time.Now().UTC().Add(-time.Hour)),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	request := map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{"task_id": "t1", "required_skills": map[string]float64{"Go": 3}, "skill_strict": true},
		},
		"roster": []interface{}{
			map[string]interface{}{"person_id": "ann", "current_workload": map[string]float64{"capacity_hours": 40}},
		},
	}

	w = doJSON(t, r, http.MethodPost, "/v1/allocation", request)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache"))

	body := decode(t, w)
	recs := body["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	assert.Equal(t, "ann", recs[0].(map[string]interface{})["chosen_assignee"])

	w = doJSON(t, r, http.MethodPost, "/v1/allocation", request)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestAllocationValidation(t *testing.T) {
	r := newTestServer(t, nil)

	w := doJSON(t, r, http.MethodPost, "/v1/allocation", map[string]interface{}{
		"tasks":  []interface{}{},
		"roster": []interface{}{map[string]interface{}{"person_id": "a"}, map[string]interface{}{"person_id": "a"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/allocation", strings.NewReader("tasks=1"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/allocation", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	r := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerMinute = 1
		cfg.RateLimit.Burst = 2
	})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = doJSON(t, r, http.MethodPost, "/v1/sentiment/analyze", map[string]interface{}{"text": "hello"})
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))

	// health is outside the limited group
	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/health", nil).Code)
}
