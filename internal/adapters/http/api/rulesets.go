// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/reputor/reputor/internal/domain/rules"
)

// RuleSetsHandler handles rule-set administration requests.
type RuleSetsHandler struct {
	deps Dependencies
}

// NewRuleSetsHandler creates a new rule-sets handler.
func NewRuleSetsHandler(deps Dependencies) *RuleSetsHandler {
	return &RuleSetsHandler{deps: deps}
}

// createRuleSetRequest mirrors the POST /rulesets body. The config is the
// closed schema; unknown keys are rejected by validation.
type createRuleSetRequest struct {
	Name   string       `json:"name"`
	Tag    string       `json:"tag"`
	Config rules.Config `json:"config"`
}

// versionResponse omits the weight constants: the engine never exposes its
// exact weights externally.
type versionResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Tag              string    `json:"tag"`
	ActiveSandbox    bool      `json:"is_active_sandbox"`
	ActiveProduction bool      `json:"is_active_production"`
	CreatedAt        time.Time `json:"created_at"`
}

func toVersionResponse(v rules.Version) versionResponse {
	return versionResponse{
		ID:               v.ID,
		Name:             v.Name,
		Tag:              v.Tag,
		ActiveSandbox:    v.ActiveSandbox,
		ActiveProduction: v.ActiveProduction,
		CreatedAt:        v.CreatedAt,
	}
}

// HandleCreate handles POST /rulesets requests.
func (h *RuleSetsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req createRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	v, err := h.deps.CreateRuleSetVersion(r.Context(), req.Name, req.Tag, req.Config)
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVersionResponse(v))
}

// HandleRuleSet routes /rulesets/{name}[...] subpaths:
//
//	GET  /rulesets/{name}           list versions
//	POST /rulesets/{name}/activate  activate a version for an environment
//	GET  /rulesets/{name}/diff      diff two tagged versions
func (h *RuleSetsHandler) HandleRuleSet(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rulesets/")
	parts := strings.SplitN(rest, "/", 2)
	name := parts[0]
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleList(w, r, name)
	case action == "activate" && r.Method == http.MethodPost:
		h.handleActivate(w, r)
	case action == "diff" && r.Method == http.MethodGet:
		h.handleDiff(w, r, name)
	default:
		http.NotFound(w, r)
	}
}

func (h *RuleSetsHandler) handleList(w http.ResponseWriter, r *http.Request, name string) {
	versions, err := h.deps.RuleSetVersions(r.Context(), name)
	if err != nil {
		translateError(w, err)
		return
	}
	out := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, toVersionResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

type activateRequest struct {
	ID          string `json:"id"`
	Environment string `json:"environment"`
}

func (h *RuleSetsHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing id"))
		return
	}
	if err := h.deps.ActivateRuleSet(r.Context(), req.ID, req.Environment); err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

type diffResponse struct {
	Changes    []rules.Change `json:"changes"`
	Impact     int            `json:"impact"`
	HighImpact bool           `json:"high_impact"`
}

func (h *RuleSetsHandler) handleDiff(w http.ResponseWriter, r *http.Request, name string) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing from/to tags"))
		return
	}
	changes, highImpact, err := h.deps.DiffRuleSetVersions(r.Context(), name, from, to)
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diffResponse{
		Changes:    changes,
		Impact:     rules.Impact(changes),
		HighImpact: highImpact,
	})
}
