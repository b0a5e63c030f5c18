package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/engine"
	"notesync-engine/internal/store"
	"notesync-engine/pkg/response"
)

type OperationHandler struct {
	manager *engine.Manager
}

func NewOperationHandler(manager *engine.Manager) *OperationHandler {
	return &OperationHandler{manager: manager}
}

type enqueueRequest struct {
	Payload            json.RawMessage           `json:"payload"`
	Priority           domain.Priority           `json:"priority"`
	NetworkRequirement domain.NetworkRequirement `json:"network_requirement,omitempty"`
	DependsOn          []string                  `json:"depends_on,omitempty"`
	ScheduledAt        *time.Time                `json:"scheduled_at,omitempty"`
	MaxRetries         int                       `json:"max_retries,omitempty"`
	ResolutionHint     string                    `json:"resolution_hint,omitempty"`
	EstimatedSize      int64                     `json:"estimated_size,omitempty"`
	Metadata           map[string]string         `json:"metadata,omitempty"`
}

func (h *OperationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if len(req.Payload) == 0 {
		response.BadRequest(w, "payload is required")
		return
	}

	payload, err := domain.DecodePayload(req.Payload)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	opts := engine.EnqueueOptions{
		Priority:           req.Priority,
		NetworkRequirement: req.NetworkRequirement,
		DependsOn:          req.DependsOn,
		MaxRetries:         req.MaxRetries,
		ResolutionHint:     req.ResolutionHint,
		EstimatedSize:      req.EstimatedSize,
		Metadata:           req.Metadata,
	}
	if req.ScheduledAt != nil {
		opts.ScheduledAt = *req.ScheduledAt
	}

	op, err := h.manager.Enqueue(r.Context(), payload, opts)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.Created(w, op)
}

func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	op, err := h.manager.Get(r.Context(), vars["id"])
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(w, "operation not found")
		return
	}
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, op)
}

func (h *OperationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if status, ok := h.manager.Status(id); ok {
		response.Success(w, map[string]interface{}{"id": id, "status": status})
		return
	}

	op, err := h.manager.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(w, "operation not found")
		return
	}
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]interface{}{"id": id, "status": op.Status})
}

func (h *OperationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	err := h.manager.Cancel(r.Context(), vars["id"])
	if errors.Is(err, engine.ErrNotCancellable) {
		response.Conflict(w, "operation is not pending")
		return
	}
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, map[string]interface{}{"message": "operation cancelled"})
}
