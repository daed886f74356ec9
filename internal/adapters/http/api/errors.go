package api

import (
	"errors"
	"net/http"

	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/adapters/repository/sandbox"
	"github.com/reputor/reputor/internal/domain/rules"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// translateError maps engine errors onto HTTP status codes and stable
// machine-readable error codes.
func translateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, rules.ErrDuplicateVersion):
		writeError(w, http.StatusConflict, "duplicate_version", err)
	case errors.Is(err, rules.ErrInvalidConfig),
		errors.Is(err, service.ErrReasonRequired),
		errors.Is(err, service.ErrUnknownKind),
		errors.Is(err, service.ErrUnknownTrigger),
		errors.Is(err, service.ErrUnknownEnvironment),
		errors.Is(err, sandbox.ErrSandboxExpired):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrIsolationViolation):
		// Fatal tier: surfaced to operators via logs and metrics, with no
		// internal detail leaked to the caller.
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
