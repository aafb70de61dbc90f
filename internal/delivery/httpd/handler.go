package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/service"
)

// UserIDHeader carries the authenticated caller. Authentication happens in
// front of this service.
const UserIDHeader = "X-User-ID"

const maxReceiptSize = 10 << 20

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	applicationService service.ApplicationService
	assignmentService  service.AssignmentService
	evaluationService  service.EvaluationService
	comparisonService  service.ComparisonService
	publishingService  service.PublishingService
	reportService      service.ReportService
	database           Pinger
	validator          *Validator
	metrics            *metrics.Metrics
	logger             zerolog.Logger
}

func NewHandler(
	applicationService service.ApplicationService,
	assignmentService service.AssignmentService,
	evaluationService service.EvaluationService,
	comparisonService service.ComparisonService,
	publishingService service.PublishingService,
	reportService service.ReportService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		applicationService: applicationService,
		assignmentService:  assignmentService,
		evaluationService:  evaluationService,
		comparisonService:  comparisonService,
		publishingService:  publishingService,
		reportService:      reportService,
		validator:          NewValidator(),
		metrics:            m,
		logger:             logger,
	}
}

// WithDatabase makes /health report database readiness.
func (h *Handler) WithDatabase(p Pinger) *Handler {
	h.database = p
	return h
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Handle("/metrics", h.metrics.Handler())

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/statuses", h.ListStatuses)
		api.Get("/sessions", h.ListSessions)
		api.Get("/examiners", h.ListExaminers)
		api.Get("/eligibility", h.CheckEligibility)

		api.Route("/registrations", func(r chi.Router) {
			r.Post("/", h.CreateApplication)
			r.Get("/", h.ListRegistrations)
			r.Get("/{id}", h.GetRegistration)
			r.Post("/{id}/payment/verify", h.VerifyPayment)
			r.Post("/{id}/payment/reject", h.RejectPayment)
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/cancel", h.Cancel)
			r.Post("/{id}/verify", h.Verify)
			r.Put("/{id}/receipt", h.UploadReceipt)
			r.Get("/{id}/receipt", h.GetReceipt)
			r.Get("/{id}/comparison", h.GetComparison)
		})

		api.Route("/assignments", func(r chi.Router) {
			r.Get("/assignable", h.ListAssignable)
			r.Post("/", h.Assign)
		})

		api.Route("/evaluation", func(r chi.Router) {
			r.Get("/examiners/{examinerID}/scripts", h.ListScripts)
			r.Get("/scripts/{code}", h.GetScript)
			r.Put("/scripts/{code}/marks", h.SaveMarks)
			r.Post("/scripts/{code}/finalize", h.FinalizeScript)
		})

		api.Get("/comparisons", h.ListComparisons)
		api.Post("/publish", h.Publish)
		api.Get("/reports/statistics", h.Statistics)
		api.Get("/reports/course-analysis", h.CourseAnalysis)
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "revaluation-service",
		"timestamp": time.Now().UTC(),
	}

	if h.database != nil {
		if err := h.database.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("Database health check failed")
			response["status"] = "unhealthy"
			response["database"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response["database"] = "ok"
	}

	writeJSON(w, http.StatusOK, response)
}

// decode reads a JSON body into dst and runs the struct validation rules.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body", apperr.FieldError{Field: "body", Message: err.Error()})
	}
	return h.validator.Struct(dst)
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getListQueryParam splits a comma separated query value, dropping blanks.
func getListQueryParam(r *http.Request, key string) []string {
	var out []string
	for _, v := range strings.Split(r.URL.Query().Get(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, map[string]interface{}{
		"code":    status,
		"message": message,
		"type":    http.StatusText(status),
	})
}

func writeErrorBody(w http.ResponseWriter, status int, body map[string]interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"error":     body,
		"success":   false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeSuccessStatus(w, http.StatusOK, data)
}

func writeSuccessStatus(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, status, response)
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:         http.StatusBadRequest,
	apperr.KindEligibility:        http.StatusUnprocessableEntity,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindConflict:           http.StatusConflict,
	apperr.KindExternalDependency: http.StatusBadGateway,
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.metrics.Error(string(apperr.KindInternal))
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Service error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status, ok := kindStatus[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	h.metrics.Error(string(appErr.Kind))
	if appErr.Kind == apperr.KindExternalDependency {
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Collaborator unavailable")
	}

	body := map[string]interface{}{
		"code":    status,
		"kind":    appErr.Kind,
		"message": appErr.Message,
		"type":    http.StatusText(status),
	}
	if appErr.EntityID != "" {
		body["entity_id"] = appErr.EntityID
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	writeErrorBody(w, status, body)
}
