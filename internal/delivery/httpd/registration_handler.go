package httpd

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.applicationService.ListSessions(r.Context(), r.URL.Query().Get("institutions_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, sessions)
}

func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.applicationService.CheckEligibility(r.Context(),
		q.Get("institutions_id"),
		q.Get("examination_session_id"),
		q.Get("register_number"),
	)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req models.CreateApplicationRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp, err := h.applicationService.CreateApplication(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccessStatus(w, http.StatusCreated, resp)
}

func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.RegistrationFilter{
		InstitutionsID:       q.Get("institutions_id"),
		ExaminationSessionID: q.Get("examination_session_id"),
		CourseID:             q.Get("course_id"),
		PaymentStatus:        models.PaymentStatus(q.Get("payment_status")),
		Search:               strings.TrimSpace(q.Get("search")),
	}
	for _, s := range getListQueryParam(r, "status") {
		filter.Statuses = append(filter.Statuses, models.RegistrationStatus(s))
	}

	resp, err := h.applicationService.List(r.Context(), filter,
		getIntQueryParam(r, "page", 1),
		getIntQueryParam(r, "limit", 0),
	)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.applicationService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reg, err := h.applicationService.VerifyPayment(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	var req models.ReasonRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	reg, err := h.applicationService.RejectPayment(r.Context(), chi.URLParam(r, "id"), req.Reason, callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	reg, err := h.applicationService.Approve(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req models.ReasonRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	reg, err := h.applicationService.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req models.ReasonRequest
	if err := h.decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	reg, err := h.applicationService.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	reg, err := h.evaluationService.Verify(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptSize+(1<<20))
	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if header.Size > maxReceiptSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Receipt exceeds the size limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := h.applicationService.UploadReceipt(r.Context(), chi.URLParam(r, "id"), header.Filename, file, header.Size, contentType)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, resp)
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	resp, err := h.applicationService.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, resp)
}

// requireCaller rejects requests without a caller identity before any body
// is read.
func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := callerID(r)
	if id == "" {
		h.handleServiceError(w, r, apperr.Validation("caller identity is required", apperr.FieldError{Field: UserIDHeader, Message: "is required"}))
		return "", false
	}
	return id, true
}
