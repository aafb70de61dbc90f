package httpd

import (
	"net/http"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

func (h *Handler) ListExaminers(w http.ResponseWriter, r *http.Request) {
	examiners, err := h.assignmentService.ListExaminers(r.Context(), r.URL.Query().Get("institutions_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, examiners)
}

func (h *Handler) ListAssignable(w http.ResponseWriter, r *http.Request) {
	scope := models.Scope{
		InstitutionsID:       r.URL.Query().Get("institutions_id"),
		ExaminationSessionID: r.URL.Query().Get("examination_session_id"),
	}

	resp, err := h.assignmentService.ListAssignable(r.Context(), scope,
		getIntQueryParam(r, "page", 1),
		getIntQueryParam(r, "limit", 0),
	)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, resp)
}

// Assign answers 200 whenever the batch ran, even if every row failed; the
// per-row outcome is in the body.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req models.AssignRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	result, err := h.assignmentService.Assign(r.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, result)
}
