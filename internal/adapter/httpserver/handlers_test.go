package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/fairyhunter13/talent-match-engine/internal/adapter/ai"
	httpserver "github.com/fairyhunter13/talent-match-engine/internal/adapter/httpserver"
	"github.com/fairyhunter13/talent-match-engine/internal/app"
	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
	"github.com/fairyhunter13/talent-match-engine/internal/scorecache"
	"github.com/fairyhunter13/talent-match-engine/internal/taskqueue"
	"github.com/fairyhunter13/talent-match-engine/internal/usecase"
)

type stubData struct{}

func (stubData) GetTalent(_ domain.Context, id string) (domain.Talent, error) {
	if id != "t1" {
		return domain.Talent{}, domain.ErrNotFound
	}
	return domain.Talent{ID: "t1", Name: "Ada", Skills: []string{"go", "postgres"}}, nil
}

func (stubData) GetMission(_ domain.Context, id string) (domain.Mission, error) {
	if id != "m1" {
		return domain.Mission{}, domain.ErrNotFound
	}
	return domain.Mission{ID: "m1", RequiredSkills: []string{"go"}}, nil
}

func (stubData) GetPortfolio(domain.Context, string) ([]domain.PortfolioProject, error) {
	return nil, nil
}

func (stubData) GetSkillsByIDs(domain.Context, []string) ([]domain.Skill, error) { return nil, nil }

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Generate(domain.Context, string, domain.GenerateOptions) (domain.Generation, error) {
	return domain.Generation{Text: `{"skills_match": 90, "experience_fit": 80, "project_relevance": 85, "requirements_fit": 88, "soft_skills_fit": 82, "reasoning": "strong"}`}, nil
}

func (stubProvider) GenerateStream(domain.Context, string, domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	ch := make(chan domain.StreamChunk, 2)
	ch <- domain.StreamChunk{Delta: "Strong profile."}
	ch <- domain.StreamChunk{Text: "Strong profile.", Done: true}
	close(ch)
	return ch, nil
}

func (stubProvider) Healthy(domain.Context) bool { return true }

type memStore struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

func (m *memStore) Get(_ domain.Context, key string) (domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return domain.CacheEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memStore) Put(_ domain.Context, e domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

func (m *memStore) Delete(_ domain.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memStore) DeleteExpiredBefore(domain.Context, time.Time) (int64, error) { return 0, nil }

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	queue := taskqueue.New(taskqueue.Config{Concurrency: 2, InitialDelay: time.Millisecond})
	t.Cleanup(queue.Close)
	cache := scorecache.New(&memStore{entries: map[string]domain.CacheEntry{}},
		func(domain.ScoreKind) time.Duration { return time.Hour }, time.Minute)
	svc := usecase.NewScoreService(stubData{}, ai.NewRouter(stubProvider{}), queue, cache, config.DefaultScoringTuning(), 1)

	cfg := config.Config{RateLimitPerMin: 1000, CORSAllowOrigins: "*"}
	srv := httpserver.NewServer(cfg, svc)
	srv.StoreCheck = func(context.Context) error { return nil }
	srv.ProviderCheck = func(context.Context) error { return nil }
	return app.BuildRouter(cfg, srv)
}

func TestGetScore_OK(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/score?kind=mission-fit&subject_id=t1&target_id=m1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Served string            `json:"served"`
		Result domain.FinalScore `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "computed", body.Served)
	assert.Greater(t, body.Result.Score, 0)
	assert.False(t, body.Result.Fallback)
}

func TestGetScore_InvalidKind(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/score?kind=bogus&subject_id=t1&target_id=m1", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestGetScore_UnknownTalent(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/score?kind=mission-fit&subject_id=ghost&target_id=m1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRank_OK(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	body := `{"talent_id": "t1", "mission_ids": ["m1"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/rank", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Missions []struct {
			MissionID string `json:"mission_id"`
			Score     int    `json:"score"`
		} `json:"missions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Missions, 1)
	assert.Equal(t, "m1", resp.Missions[0].MissionID)
}

func TestRank_ValidationErrors(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing talent", body: `{"mission_ids": ["m1"]}`},
		{name: "empty missions", body: `{"talent_id": "t1", "mission_ids": []}`},
		{name: "broken json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/rank", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRank_RejectsWrongContentType(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", strings.NewReader("talent_id=t1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidate_OK(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	body := `{"kind": "mission-fit", "subject_id": "t1", "target_id": "m1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/invalidate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalidated")
}

func TestQueueStats_OK(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queue/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "queued")
	assert.Contains(t, stats, "breaker_open")
}

func TestAnalyzeProfileStream_SSE(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/talents/t1/analysis/stream", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, rec.Body.String(), "event: delta")
	assert.Contains(t, rec.Body.String(), "event: done")
	assert.Contains(t, rec.Body.String(), "Strong profile.")
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_StoreFailureIsNotReady(t *testing.T) {
	t.Parallel()
	queue := taskqueue.New(taskqueue.Config{Concurrency: 1, InitialDelay: time.Millisecond})
	t.Cleanup(queue.Close)
	cache := scorecache.New(&memStore{entries: map[string]domain.CacheEntry{}},
		func(domain.ScoreKind) time.Duration { return time.Hour }, time.Minute)
	svc := usecase.NewScoreService(stubData{}, ai.NewRouter(stubProvider{}), queue, cache, config.DefaultScoringTuning(), 1)

	cfg := config.Config{RateLimitPerMin: 1000}
	srv := httpserver.NewServer(cfg, svc)
	srv.StoreCheck = func(context.Context) error { return fmt.Errorf("connection refused") }
	srv.ProviderCheck = func(context.Context) error { return nil }
	h := app.BuildRouter(cfg, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_ProviderDegradedStillReady(t *testing.T) {
	t.Parallel()
	queue := taskqueue.New(taskqueue.Config{Concurrency: 1, InitialDelay: time.Millisecond})
	t.Cleanup(queue.Close)
	cache := scorecache.New(&memStore{entries: map[string]domain.CacheEntry{}},
		func(domain.ScoreKind) time.Duration { return time.Hour }, time.Minute)
	svc := usecase.NewScoreService(stubData{}, ai.NewRouter(stubProvider{}), queue, cache, config.DefaultScoringTuning(), 1)

	cfg := config.Config{RateLimitPerMin: 1000}
	srv := httpserver.NewServer(cfg, svc)
	srv.StoreCheck = func(context.Context) error { return nil }
	srv.ProviderCheck = func(context.Context) error { return fmt.Errorf("provider down") }
	h := app.BuildRouter(cfg, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "provider down")
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
