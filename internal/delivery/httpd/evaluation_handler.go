package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

// Examiner routes act on behalf of the caller; the caller must be the
// examiner the script is assigned to.

func (h *Handler) ListScripts(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	examinerID := chi.URLParam(r, "examinerID")
	if caller != examinerID {
		h.handleServiceError(w, r, apperr.NotFound("examiner", examinerID))
		return
	}

	scripts, err := h.evaluationService.ListScripts(r.Context(), examinerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, scripts)
}

func (h *Handler) GetScript(w http.ResponseWriter, r *http.Request) {
	script, err := h.evaluationService.GetScript(r.Context(), callerID(r), chi.URLParam(r, "code"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, script)
}

func (h *Handler) SaveMarks(w http.ResponseWriter, r *http.Request) {
	examinerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req models.SaveMarksRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	script, err := h.evaluationService.SaveMarks(r.Context(), examinerID, chi.URLParam(r, "code"), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, script)
}

func (h *Handler) FinalizeScript(w http.ResponseWriter, r *http.Request) {
	script, err := h.evaluationService.Finalize(r.Context(), callerID(r), chi.URLParam(r, "code"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, script)
}
