package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/api/problem"
	"github.com/faultline-hq/faultline/internal/domain/events"
	"github.com/faultline-hq/faultline/internal/metrics"
)

const maxEventBody = 1 << 20 // 1 MiB

// StoreHandler accepts error events from SDKs and folds them into
// issues.
type StoreHandler struct {
	Ingest *events.IngestService
	Env    string
}

// Store handles POST /api/0/projects/{project_id}/store/.
func (h *StoreHandler) Store(w http.ResponseWriter, r *http.Request) {
	projectID := pathParam(r, "project_id")

	var input events.EventInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Malformed event payload", err, h.Env,
			problem.WithDetail("request body must be a JSON event"))
		return
	}

	result, err := h.Ingest.Ingest(r.Context(), projectID, input)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrInvalidPayload):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid event payload", err, h.Env,
				problem.WithDetail(err.Error()))
		case errors.Is(err, events.ErrTooOld):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Event too old", err, h.Env,
				problem.WithDetail("event timestamp is too far in the past"))
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Str("project", projectID).Msg("ingest event")
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		}
		return
	}

	metrics.EventsIngested.WithLabelValues(projectID).Inc()
	if result.NewGroup {
		metrics.GroupsCreated.Inc()
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": result.Event.ULID})
}
