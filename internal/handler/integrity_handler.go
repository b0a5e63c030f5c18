package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"notesync-engine/internal/integrity"
	"notesync-engine/internal/notestore"
	"notesync-engine/pkg/response"
)

type IntegrityHandler struct {
	checker *integrity.Checker
	notes   notestore.NoteStore
}

func NewIntegrityHandler(checker *integrity.Checker, notes notestore.NoteStore) *IntegrityHandler {
	return &IntegrityHandler{checker: checker, notes: notes}
}

// RunScan validates every note synchronously and returns the report.
// ?auto_correct=true also applies suggested corrections.
func (h *IntegrityHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	autoCorrect := r.URL.Query().Get("auto_correct") == "true"

	report, err := h.checker.ScanAll(r.Context(), autoCorrect)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, report)
}

func (h *IntegrityHandler) ValidateNote(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	note, err := h.notes.GetByID(r.Context(), vars["id"])
	if errors.Is(err, notestore.ErrNotFound) {
		response.NotFound(w, "note not found")
		return
	}
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	result, err := h.checker.ValidateNote(r.Context(), note)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, result)
}
