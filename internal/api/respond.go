package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/marketsage/journey-engine/internal/pkg/logger"
	"github.com/marketsage/journey-engine/internal/repository"
	"github.com/marketsage/journey-engine/internal/service/analytics"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/metrics"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

type orgKey struct{}

// requireOrg resolves the caller's organization from the X-Organization-ID
// header or the org_id query parameter and rejects requests without one.
func requireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Organization-ID")
		if raw == "" {
			raw = r.URL.Query().Get("org_id")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "organization context required")
			return
		}
		ctx := context.WithValue(r.Context(), orgKey{}, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func orgID(r *http.Request) string {
	id, _ := r.Context().Value(orgKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Error("encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serviceError maps service-layer errors onto HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, journey.ErrNotFound),
		errors.Is(err, journey.ErrStageNotFound),
		errors.Is(err, journey.ErrTransitionNotFound),
		errors.Is(err, progression.ErrNotFound),
		errors.Is(err, progression.ErrJourneyNotFound),
		errors.Is(err, progression.ErrStageNotFound),
		errors.Is(err, analytics.ErrNotFound),
		errors.Is(err, analytics.ErrSnapshotNotFound),
		errors.Is(err, metrics.ErrNotFound),
		errors.Is(err, metrics.ErrJourneyNotFound),
		errors.Is(err, metrics.ErrStageNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, journey.ErrStageInUse),
		errors.Is(err, progression.ErrConcurrentModification),
		errors.Is(err, analytics.ErrRecomputeInProgress):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, journey.ErrCrossJourneyTransition),
		errors.Is(err, progression.ErrJourneyInactive),
		errors.Is(err, progression.ErrNoEntryPoint),
		errors.Is(err, progression.ErrJourneyNotActive),
		errors.Is(err, progression.ErrNotPaused),
		errors.Is(err, progression.ErrTerminal),
		errors.Is(err, progression.ErrInvalidTransition),
		errors.Is(err, progression.ErrNoOpenVisit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, repository.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")

	default:
		logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
