package profileapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/profileapi"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

func TestClient_GetTalent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/talents/t1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(domain.Talent{ID: "t1", Name: "Ada", Skills: []string{"go"}})
	}))
	defer srv.Close()

	c := profileapi.New(srv.URL, time.Second)
	talent, err := c.GetTalent(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", talent.Name)
	assert.Equal(t, []string{"go"}, talent.Skills)
}

func TestClient_GetTalentNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := profileapi.New(srv.URL, time.Second)
	_, err := c.GetTalent(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: domain.ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError, want: domain.ErrUnavailable},
		{name: "client error", status: http.StatusBadRequest, want: domain.ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := profileapi.New(srv.URL, time.Second)
			_, err := c.GetMission(context.Background(), "m1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_ConnectionErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	c := profileapi.New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.GetTalent(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClient_GetPortfolio(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/talents/t1/portfolio", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]domain.PortfolioProject{{Title: "CRM", Skills: []string{"go"}}})
	}))
	defer srv.Close()

	c := profileapi.New(srv.URL, time.Second)
	projects, err := c.GetPortfolio(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "CRM", projects[0].Title)
}

func TestClient_GetSkillsByIDs(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/skills", r.URL.Path)
		assert.Equal(t, "s1,s2", r.URL.Query().Get("ids"))
		_ = json.NewEncoder(w).Encode([]domain.Skill{{ID: "s1", Name: "Go"}})
	}))
	defer srv.Close()

	c := profileapi.New(srv.URL, time.Second)
	skills, err := c.GetSkillsByIDs(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "Go", skills[0].Name)
}

func TestClient_GetSkillsByIDsEmpty(t *testing.T) {
	t.Parallel()
	c := profileapi.New("http://unused", time.Second)
	skills, err := c.GetSkillsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, skills)
}
