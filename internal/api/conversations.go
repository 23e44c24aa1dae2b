package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kalambet/caseflow/internal/orchestrator"
	"github.com/kalambet/caseflow/internal/storage"
)

func handleGetState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		v, err := loadState(deps.Store, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation %q has no orchestration state", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load state: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleListDemands(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		demands, err := loadDemands(deps.Store, chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list demands: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, demands)
	}
}

func handleGetSolution(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		v, err := loadSolution(deps.Store, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation %q has no solution", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load solution: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDispatchLog(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		entries, err := loadLog(deps.Store, chi.URLParam(r, "id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load dispatch log: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type processResponse struct {
	EventID    int64  `json:"event_id"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	Dispatches int    `json:"dispatches"`
	Status     string `json:"status,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleProcess runs a turn synchronously for the conversation's latest
// event. An event that was already handled is reported as ignored.
func handleProcess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Turns == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "turn processing is not available")
			return
		}
		id := chi.URLParam(r, "id")
		last, err := deps.Store.LastMessage(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation %q has no events", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load last event: %v", err)
			return
		}

		res, err := deps.Turns.ProcessEvent(r.Context(), last.ID)
		resp := processResponse{
			EventID:    last.ID,
			Outcome:    string(res.Outcome),
			Reason:     res.Reason,
			Dispatches: res.Dispatches,
			Status:     string(res.Status),
			Owner:      res.Owner.String(),
		}
		code := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			code = http.StatusInternalServerError
			if errors.Is(err, orchestrator.ErrTransferFailed) {
				code = http.StatusBadGateway
			}
		}
		writeJSON(w, code, resp)
	}
}
