package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/api/problem"
	"github.com/faultline-hq/faultline/internal/domain/ids"
	"github.com/faultline-hq/faultline/internal/domain/issues"
	"github.com/faultline-hq/faultline/internal/domain/tags"
)

// GroupTagValuesHandler serves the aggregated values recorded for one
// tag key on one issue.
type GroupTagValuesHandler struct {
	Issues *issues.Service
	Tags   *tags.Service
	Env    string
}

type tagValueResponse struct {
	Value     string    `json:"value"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`

	// Identity fields, present for the "user" key only.
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// List handles GET /api/0/issues/{group_id}/tags/{key}/values/.
func (h *GroupTagValuesHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID := pathParam(r, "group_id")
	if err := ids.ValidateULID(groupID); err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Issue not found", err, h.Env)
		return
	}

	sort, err := tags.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid sort parameter", err, h.Env,
			problem.WithDetail(err.Error()))
		return
	}

	group, err := h.Issues.GetByULID(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, issues.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Issue not found", err, h.Env)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("group", groupID).Msg("load issue")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	key := pathParam(r, "key")
	values, err := h.Tags.ListValues(r.Context(), group.ID, key, sort)
	if err != nil {
		if errors.Is(err, tags.ErrInvalidKey) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid tag key", err, h.Env)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("group", groupID).Str("key", key).Msg("list tag values")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Internal server error", err, h.Env)
		return
	}

	out := make([]tagValueResponse, 0, len(values))
	for _, v := range values {
		row := tagValueResponse{
			Value:     v.Value,
			Count:     v.TimesSeen,
			FirstSeen: v.FirstSeen.UTC(),
			LastSeen:  v.LastSeen.UTC(),
		}
		if v.User != nil {
			row.ID = v.User.Ident
			row.Username = v.User.Username
			row.Email = v.User.Email
			row.IPAddress = v.User.IPAddress
		}
		out = append(out, row)
	}

	writeJSON(w, http.StatusOK, out)
}
