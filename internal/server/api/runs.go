package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/reelcam/internal/domain"
	"github.com/ayusman/reelcam/internal/store"
)

// RunHandler serves /api/runs and /api/runs/{id}.
type RunHandler struct {
	store *store.Store
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

type listRunsResponse struct {
	Runs []*domain.RunReport `json:"runs"`
}

func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")
	if id != "" {
		rep, err := h.store.Runs().GetByID(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to get run")
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*domain.RunReport{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}
