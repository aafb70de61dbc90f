package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

func scopeFromQuery(r *http.Request) models.Scope {
	return models.Scope{
		InstitutionsID:       r.URL.Query().Get("institutions_id"),
		ExaminationSessionID: r.URL.Query().Get("examination_session_id"),
	}
}

func (h *Handler) ListComparisons(w http.ResponseWriter, r *http.Request) {
	report, err := h.comparisonService.ListComparisons(r.Context(), scopeFromQuery(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, report)
}

func (h *Handler) GetComparison(w http.ResponseWriter, r *http.Request) {
	item, err := h.comparisonService.GetComparison(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, item)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	publishedBy, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req models.PublishRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	result, err := h.publishingService.Publish(r.Context(), req.Selections, publishedBy)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, result)
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reportService.Statistics(r.Context(), scopeFromQuery(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, stats)
}

func (h *Handler) CourseAnalysis(w http.ResponseWriter, r *http.Request) {
	report, err := h.reportService.CourseAnalysis(r.Context(), scopeFromQuery(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, report)
}
