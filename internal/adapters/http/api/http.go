// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/rules"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the engine implementation.
type Dependencies interface {
	Score(ctx context.Context, subjectID string, kind model.ScoreKind, counterpartyID string, sbx *model.SandboxContext) (model.ScoreSnapshot, error)
	History(ctx context.Context, subjectID string, kind model.ScoreKind, limit int, sbx *model.SandboxContext) ([]model.ScoreHistoryEntry, error)
	Recompute(ctx context.Context, req service.RecomputeRequest) (model.ScoreSnapshot, error)

	CreateRuleSetVersion(ctx context.Context, name, tag string, cfg rules.Config) (rules.Version, error)
	RuleSetVersions(ctx context.Context, name string) ([]rules.Version, error)
	ActivateRuleSet(ctx context.Context, id, environment string) error
	DiffRuleSetVersions(ctx context.Context, name, fromTag, toTag string) ([]rules.Change, bool, error)
}

// Server wires HTTP routes for the engine API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	scoresHandler    *ScoresHandler
	recomputeHandler *RecomputeHandler
	historyHandler   *HistoryHandler
	ruleSetsHandler  *RuleSetsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		scoresHandler:    NewScoresHandler(deps),
		recomputeHandler: NewRecomputeHandler(deps),
		historyHandler:   NewHistoryHandler(deps),
		ruleSetsHandler:  NewRuleSetsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/scores/", MetricsMiddleware(s.scoresHandler.HandleGetScore, "scores"))
	mux.HandleFunc("/recompute", MetricsMiddleware(s.recomputeHandler.HandleRecompute, "recompute"))
	mux.HandleFunc("/history/", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
	mux.HandleFunc("/rulesets", MetricsMiddleware(s.ruleSetsHandler.HandleCreate, "rulesets"))
	mux.HandleFunc("/rulesets/", MetricsMiddleware(s.ruleSetsHandler.HandleRuleSet, "rulesets"))
}

// sandboxRequest mirrors the sandbox contract: {isolation_id, expires_at}.
type sandboxRequest struct {
	IsolationID string `json:"isolation_id"`
	ExpiresAt   string `json:"expires_at"`
}

func (s *sandboxRequest) toModel() (*model.SandboxContext, error) {
	if s == nil {
		return nil, nil //nolint:nilnil // absent sandbox means production
	}
	if strings.TrimSpace(s.IsolationID) == "" {
		return nil, errors.New("sandbox isolation_id must not be empty")
	}
	expires, err := time.Parse(time.RFC3339, s.ExpiresAt)
	if err != nil {
		return nil, errors.New("sandbox expires_at must be RFC3339")
	}
	return &model.SandboxContext{IsolationID: s.IsolationID, ExpiresAt: expires}, nil
}

// sandboxFromQuery parses the optional sandbox_id/sandbox_expires_at query
// parameters used on read endpoints.
func sandboxFromQuery(q url.Values) (*model.SandboxContext, error) {
	id := q.Get("sandbox_id")
	if id == "" {
		return nil, nil //nolint:nilnil // absent sandbox means production
	}
	sb := &sandboxRequest{IsolationID: id, ExpiresAt: q.Get("sandbox_expires_at")}
	return sb.toModel()
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// snapshotResponse is the outbound score contract.
type snapshotResponse struct {
	SubjectID      string             `json:"subject_id"`
	Kind           string             `json:"kind"`
	CounterpartyID string             `json:"counterparty_id,omitempty"`
	CompositeScore float64            `json:"composite_score"`
	Breakdown      map[string]float64 `json:"breakdown"`
	ModelVersion   string             `json:"model_version"`
	ComputedAt     time.Time          `json:"computed_at"`
	Degraded       bool               `json:"degraded,omitempty"`
	SandboxID      string             `json:"sandbox_id,omitempty"`
}

func toSnapshotResponse(snap model.ScoreSnapshot) snapshotResponse {
	return snapshotResponse{
		SubjectID:      snap.SubjectID,
		Kind:           string(snap.Kind),
		CounterpartyID: snap.CounterpartyID,
		CompositeScore: snap.Composite,
		Breakdown:      snap.Breakdown,
		ModelVersion:   snap.ModelVersion,
		ComputedAt:     snap.ComputedAt,
		Degraded:       snap.Degraded,
		SandboxID:      snap.SandboxID,
	}
}
