package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/engine"
	"notesync-engine/internal/middleware"
	"notesync-engine/internal/netmon"
	"notesync-engine/internal/store"
	"notesync-engine/pkg/response"
)

type SyncHandler struct {
	manager *engine.Manager
	monitor *netmon.Monitor
}

func NewSyncHandler(manager *engine.Manager, monitor *netmon.Monitor) *SyncHandler {
	return &SyncHandler{manager: manager, monitor: monitor}
}

func (h *SyncHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.manager.Stats())
}

func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	h.manager.ForceSyncAll()
	response.Accepted(w, map[string]interface{}{
		"message": "sync scan triggered",
	})
}

func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed <= 0 {
			response.BadRequest(w, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	conflicts, err := h.manager.Conflicts(r.Context(), limit)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, conflicts)
}

type resolveConflictRequest struct {
	Strategy domain.ResolutionStrategy `json:"strategy"`
}

func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	conflictID := vars["id"]

	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	switch req.Strategy {
	case domain.ResolutionAcceptLocal, domain.ResolutionAcceptRemote,
		domain.ResolutionAutoMerge, domain.ResolutionLastWriteWins:
	default:
		response.BadRequest(w, "unsupported resolution strategy")
		return
	}

	resolvedBy := middleware.GetSubject(r)
	if resolvedBy == "" {
		resolvedBy = "api"
	}

	err := h.manager.ResolveConflict(r.Context(), conflictID, resolvedBy, req.Strategy)
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(w, "conflict not found")
		return
	}
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]interface{}{"message": "conflict resolved"})
}

func (h *SyncHandler) GetNetworkState(w http.ResponseWriter, r *http.Request) {
	state := h.monitor.Current()
	response.Success(w, map[string]interface{}{
		"state":          state,
		"recommendation": h.monitor.GetSyncRecommendation(),
		"batch_size":     h.monitor.GetOptimalBatchSize(),
		"sync_interval":  h.monitor.GetRecommendedSyncInterval().String(),
		"pattern":        h.monitor.ConnectivityPattern(),
	})
}
