// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"

	"github.com/reputor/reputor/internal/domain/model"
)

// ScoresHandler handles score read requests.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleGetScore handles GET /scores/{subject_id}?kind=&counterparty= requests.
func (h *ScoresHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	subjectID := strings.TrimPrefix(r.URL.Path, "/scores/")
	if subjectID == "" || strings.Contains(subjectID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	kind := model.ScoreKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.KindTrust
	}
	counterparty := r.URL.Query().Get("counterparty")

	sbx, err := sandboxFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	snap, err := h.deps.Score(r.Context(), subjectID, kind, counterparty, sbx)
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}
