// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/domain/model"
)

// RecomputeHandler handles recompute trigger requests.
type RecomputeHandler struct {
	deps Dependencies
}

// NewRecomputeHandler creates a new recompute handler.
func NewRecomputeHandler(deps Dependencies) *RecomputeHandler {
	return &RecomputeHandler{deps: deps}
}

// recomputeRequest mirrors the POST /recompute body.
type recomputeRequest struct {
	SubjectID      string          `json:"subject_id"`
	Kind           string          `json:"kind"`
	CounterpartyID string          `json:"counterparty_id"`
	Trigger        string          `json:"trigger"`
	Reason         string          `json:"reason"`
	TriggeredBy    string          `json:"triggered_by"`
	Sandbox        *sandboxRequest `json:"sandbox,omitempty"`
}

func (r recomputeRequest) validate() error {
	switch {
	case strings.TrimSpace(r.SubjectID) == "":
		return errors.New("missing subject_id")
	case strings.TrimSpace(r.Kind) == "":
		return errors.New("missing kind")
	case strings.TrimSpace(r.Trigger) == "":
		return errors.New("missing trigger")
	}
	return nil
}

// HandleRecompute handles POST /recompute requests.
func (h *RecomputeHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sbx, err := req.Sandbox.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	snap, err := h.deps.Recompute(r.Context(), service.RecomputeRequest{
		SubjectID:      req.SubjectID,
		Kind:           model.ScoreKind(req.Kind),
		CounterpartyID: req.CounterpartyID,
		Trigger:        model.Trigger(req.Trigger),
		Reason:         req.Reason,
		TriggeredBy:    req.TriggeredBy,
		Sandbox:        sbx,
	})
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}
