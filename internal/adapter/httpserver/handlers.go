package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
	"github.com/fairyhunter13/talent-match-engine/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg    config.Config
	Scores *usecase.ScoreService

	StoreCheck    func(ctx context.Context) error
	ProviderCheck func(ctx context.Context) error

	validate *validator.Validate
}

// NewServer wires the handler set.
func NewServer(cfg config.Config, scores *usecase.ScoreService) *Server {
	return &Server{
		Cfg:      cfg,
		Scores:   scores,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type scoreResponse struct {
	Kind      string            `json:"kind"`
	SubjectID string            `json:"subject_id"`
	TargetID  string            `json:"target_id,omitempty"`
	Served    string            `json:"served"`
	Result    domain.FinalScore `json:"result"`
}

// GetScore handles GET /v1/score.
func (s *Server) GetScore() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := domain.ScoreRequest{
			Kind:      domain.ScoreKind(r.URL.Query().Get("kind")),
			SubjectID: r.URL.Query().Get("subject_id"),
			TargetID:  r.URL.Query().Get("target_id"),
		}
		score, outcome, err := s.Scores.GetScore(r.Context(), req)
		if err != nil {
			LoggerFrom(r).Warn("score request failed", "kind", string(req.Kind), "error", err)
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, scoreResponse{
			Kind:      string(req.Kind),
			SubjectID: req.SubjectID,
			TargetID:  req.TargetID,
			Served:    string(outcome),
			Result:    score,
		})
	}
}

type rankRequest struct {
	TalentID   string   `json:"talent_id" validate:"required,max=100"`
	MissionIDs []string `json:"mission_ids" validate:"required,min=1,max=50,dive,required,max=100"`
	Limit      int      `json:"limit" validate:"omitempty,min=1,max=50"`
}

// Rank handles POST /v1/rank.
func (s *Server) Rank() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rankRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		ranked, err := s.Scores.RankMissions(r.Context(), req.TalentID, req.MissionIDs, req.Limit)
		if err != nil {
			LoggerFrom(r).Warn("rank request failed", "talent_id", req.TalentID, "error", err)
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"talent_id": req.TalentID,
			"missions":  ranked,
		})
	}
}

type invalidateRequest struct {
	Kind      string `json:"kind" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required,max=100"`
	TargetID  string `json:"target_id" validate:"omitempty,max=100"`
}

// Invalidate handles POST /v1/invalidate.
func (s *Server) Invalidate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invalidateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		err := s.Scores.Invalidate(r.Context(), domain.ScoreRequest{
			Kind:      domain.ScoreKind(req.Kind),
			SubjectID: req.SubjectID,
			TargetID:  req.TargetID,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
	}
}

// QueueStats handles GET /v1/queue/stats.
func (s *Server) QueueStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.Scores.QueueStats()
		writeJSON(w, http.StatusOK, map[string]any{
			"queued":           st.Queued,
			"active":           st.Active,
			"breaker_open":     st.BreakerOpen,
			"breaker_failures": st.BreakerFailures,
		})
	}
}

// AnalyzeProfileStream handles GET /v1/talents/{id}/analysis/stream as SSE.
func (s *Server) AnalyzeProfileStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		talentID := chi.URLParam(r, "id")
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: streaming unsupported", domain.ErrInternal), nil)
			return
		}
		ch, err := s.Scores.AnalyzeProfileStream(r.Context(), talentID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for chunk := range ch {
			if chunk.Err != nil {
				writeSSE(w, "error", strconv.Quote(chunk.Err.Error()))
				flusher.Flush()
				return
			}
			if chunk.Delta != "" {
				writeSSE(w, "delta", strconv.Quote(chunk.Delta))
				flusher.Flush()
			}
			if chunk.Done {
				writeSSE(w, "done", strconv.Quote(chunk.Text))
				flusher.Flush()
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// Healthz handles liveness checks.
func (s *Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type readinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// Readyz reports readiness of the store and the active provider. A degraded
// provider does not fail readiness; the fallback path still answers.
func (s *Server) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make([]readinessCheck, 0, 2)
		ready := true

		if s.StoreCheck != nil {
			c := readinessCheck{Name: "store", OK: true}
			if err := s.StoreCheck(ctx); err != nil {
				c.OK = false
				c.Details = err.Error()
				ready = false
			}
			checks = append(checks, c)
		}
		if s.ProviderCheck != nil {
			c := readinessCheck{Name: "provider", OK: true}
			if err := s.ProviderCheck(ctx); err != nil {
				c.OK = false
				c.Details = err.Error()
			}
			checks = append(checks, c)
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}
