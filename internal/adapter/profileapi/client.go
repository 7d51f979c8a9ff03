// Package profileapi implements the DataProvider port against the internal
// profile/mission HTTP service.
package profileapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Client fetches talents, missions, portfolios and skills over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New builds a Client. timeout bounds each request.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

// GetTalent loads one talent by id.
func (c *Client) GetTalent(ctx domain.Context, id string) (domain.Talent, error) {
	var t domain.Talent
	if err := c.getJSON(ctx, "/talents/"+url.PathEscape(id), &t); err != nil {
		return domain.Talent{}, fmt.Errorf("op=profileapi.get_talent id=%s: %w", id, err)
	}
	return t, nil
}

// GetMission loads one mission by id.
func (c *Client) GetMission(ctx domain.Context, id string) (domain.Mission, error) {
	var m domain.Mission
	if err := c.getJSON(ctx, "/missions/"+url.PathEscape(id), &m); err != nil {
		return domain.Mission{}, fmt.Errorf("op=profileapi.get_mission id=%s: %w", id, err)
	}
	return m, nil
}

// GetPortfolio loads the talent's past projects. A talent without projects
// yields an empty slice, not an error.
func (c *Client) GetPortfolio(ctx domain.Context, talentID string) ([]domain.PortfolioProject, error) {
	var out []domain.PortfolioProject
	err := c.getJSON(ctx, "/talents/"+url.PathEscape(talentID)+"/portfolio", &out)
	if err != nil {
		return nil, fmt.Errorf("op=profileapi.get_portfolio talent=%s: %w", talentID, err)
	}
	return out, nil
}

// GetSkillsByIDs resolves skill records in one batched call. Unknown ids are
// silently absent from the result.
func (c *Client) GetSkillsByIDs(ctx domain.Context, ids []string) ([]domain.Skill, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{"ids": []string{strings.Join(ids, ",")}}
	var out []domain.Skill
	if err := c.getJSON(ctx, "/skills?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("op=profileapi.get_skills: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx domain.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", domain.ErrRejected, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
