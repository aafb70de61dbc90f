package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
	"github.com/RubachokBoss/revaluation-service/internal/service/integration"
)

type ApplicationService interface {
	CheckEligibility(ctx context.Context, institutionsID, sessionID, registerNumber string) (*models.EligibilityResponse, error)
	CreateApplication(ctx context.Context, req *models.CreateApplicationRequest) (*models.ApplicationResponse, error)
	GetByID(ctx context.Context, id string) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter, page, limit int) (*models.RegistrationsResponse, error)
	ListSessions(ctx context.Context, institutionsID string) ([]models.ExaminationSession, error)
	VerifyPayment(ctx context.Context, id, actor string) (*models.Registration, error)
	RejectPayment(ctx context.Context, id, reason, actor string) (*models.Registration, error)
	Approve(ctx context.Context, id, actor string) (*models.Registration, error)
	Reject(ctx context.Context, id, reason, actor string) (*models.Registration, error)
	Cancel(ctx context.Context, id, reason, actor string) (*models.Registration, error)
	UploadReceipt(ctx context.Context, id, fileName string, r io.Reader, size int64, contentType string) (*models.ReceiptResponse, error)
	GetReceipt(ctx context.Context, id string) (*models.ReceiptResponse, error)
}

type applicationService struct {
	*workflow
	exams    integration.ExamClient
	fees     integration.FeeClient
	receipts integration.ReceiptStorage
	settings Settings
}

func NewApplicationService(
	regs repository.RegistrationRepository,
	exams integration.ExamClient,
	fees integration.FeeClient,
	receipts integration.ReceiptStorage,
	events integration.EventPublisher,
	m *metrics.Metrics,
	settings Settings,
	logger zerolog.Logger,
) ApplicationService {
	return &applicationService{
		workflow: &workflow{regs: regs, events: events, metrics: m, logger: logger},
		exams:    exams,
		fees:     fees,
		receipts: receipts,
		settings: settings,
	}
}

func (s *applicationService) CheckEligibility(ctx context.Context, institutionsID, sessionID, registerNumber string) (*models.EligibilityResponse, error) {
	var fields []apperr.FieldError
	if strings.TrimSpace(sessionID) == "" {
		fields = append(fields, apperr.FieldError{Field: "examination_session_id", Message: "is required"})
	}
	if strings.TrimSpace(registerNumber) == "" {
		fields = append(fields, apperr.FieldError{Field: "register_number", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid eligibility query", fields...)
	}

	examReg, rows, _, err := s.evaluate(ctx, sessionID, registerNumber)
	if err != nil {
		return nil, err
	}

	resp := &models.EligibilityResponse{ExamRegistration: *examReg, Courses: rows}
	if institutionsID != "" {
		fee, err := s.fees.GetFeeConfig(ctx, institutionsID)
		if err != nil {
			return nil, err
		}
		resp.FeePerCourse = fee.FeePerCourse
	}
	return resp, nil
}

// evaluate resolves the student and runs the eligibility rules over a fresh
// snapshot of results and prior registrations.
func (s *applicationService) evaluate(ctx context.Context, sessionID, registerNumber string) (*models.ExamRegistration, []models.EligibleCourseResult, []models.Registration, error) {
	examReg, err := s.exams.FindExamRegistration(ctx, sessionID, registerNumber)
	if err != nil {
		return nil, nil, nil, err
	}

	results, err := s.exams.GetResults(ctx, examReg.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	prior, err := s.regs.ListByExamRegistration(ctx, examReg.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list prior registrations: %w", err)
	}

	return examReg, revaluation.Evaluate(results, prior), prior, nil
}

func validateApplication(req *models.CreateApplicationRequest) error {
	var fields []apperr.FieldError
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, apperr.FieldError{Field: field, Message: "is required"})
		}
	}

	required("institutions_id", req.InstitutionsID)
	required("examination_session_id", req.ExaminationSessionID)
	required("register_number", req.RegisterNumber)
	required("payment_transaction_id", req.PaymentTransactionID)
	if req.PaymentDate.IsZero() {
		fields = append(fields, apperr.FieldError{Field: "payment_date", Message: "is required"})
	}
	if req.PaymentAmount <= 0 {
		fields = append(fields, apperr.FieldError{Field: "payment_amount", Message: "must be greater than 0"})
	}

	switch n := len(req.CourseIDs); {
	case n == 0:
		fields = append(fields, apperr.FieldError{Field: "course_ids", Message: "at least one course must be selected"})
	case n > revaluation.MaxCoursesPerApplication:
		fields = append(fields, apperr.FieldError{
			Field:   "course_ids",
			Message: fmt.Sprintf("at most %d courses can be selected", revaluation.MaxCoursesPerApplication),
		})
	default:
		seen := make(map[string]bool, n)
		for _, id := range req.CourseIDs {
			if strings.TrimSpace(id) == "" {
				fields = append(fields, apperr.FieldError{Field: "course_ids", Message: "must not contain empty ids"})
				break
			}
			if seen[id] {
				fields = append(fields, apperr.FieldError{Field: "course_ids", Message: "must not contain duplicates"})
				break
			}
			seen[id] = true
		}
	}

	if len(fields) > 0 {
		return apperr.Validation("invalid application", fields...)
	}
	return nil
}

func (s *applicationService) CreateApplication(ctx context.Context, req *models.CreateApplicationRequest) (*models.ApplicationResponse, error) {
	if err := validateApplication(req); err != nil {
		return nil, err
	}

	fee, err := s.fees.GetFeeConfig(ctx, req.InstitutionsID)
	if err != nil {
		return nil, err
	}
	totalFee := revaluation.Round2(fee.FeePerCourse * float64(len(req.CourseIDs)))
	if math.Abs(totalFee-req.PaymentAmount) > s.settings.FeeTolerance {
		return nil, apperr.Validation("payment amount does not match the revaluation fee", apperr.FieldError{
			Field:   "payment_amount",
			Message: fmt.Sprintf("expected %.2f for %d course(s), got %.2f", totalFee, len(req.CourseIDs), req.PaymentAmount),
		})
	}

	examReg, rows, prior, err := s.evaluate(ctx, req.ExaminationSessionID, req.RegisterNumber)
	if err != nil {
		return nil, err
	}

	byCourse := make(map[string]models.EligibleCourseResult, len(rows))
	for _, row := range rows {
		byCourse[row.CourseID] = row
	}

	var ineligible []apperr.ItemError
	for _, courseID := range req.CourseIDs {
		row, ok := byCourse[courseID]
		switch {
		case !ok:
			ineligible = append(ineligible, apperr.ItemError{ID: courseID, Reason: "No result found for course"})
		case !row.IsEligible:
			ineligible = append(ineligible, apperr.ItemError{ID: courseID, Reason: row.IneligibleReason})
		}
	}
	if len(ineligible) > 0 {
		return nil, apperr.Eligibility("one or more selected courses are not eligible for revaluation", ineligible)
	}

	now := s.now()
	regs := make([]models.Registration, 0, len(req.CourseIDs))
	for _, courseID := range req.CourseIDs {
		row := byCourse[courseID]
		reg := models.Registration{
			ID:                    uuid.New().String(),
			InstitutionsID:        req.InstitutionsID,
			ExaminationSessionID:  req.ExaminationSessionID,
			ExamRegistrationID:    examReg.ID,
			CourseID:              courseID,
			OriginalFinalMarksID:  row.FinalMarksID,
			StudentRegisterNumber: examReg.RegisterNumber,
			StudentName:           examReg.StudentName,
			CourseCode:            row.CourseCode,
			CourseTitle:           row.CourseTitle,
			AttemptNumber:         row.NextAttemptNumber,
			FeeAmount:             fee.FeePerCourse,
			PaymentStatus:         models.PaymentPending,
			PaymentTransactionID:  req.PaymentTransactionID,
			PaymentDate:           req.PaymentDate,
			PaymentAmount:         req.PaymentAmount,
			Status:                models.StatusPaymentPending,
			ReasonForRevaluation:  req.ReasonForRevaluation,
			ApplicationDate:       now,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if reg.StudentRegisterNumber == "" {
			reg.StudentRegisterNumber = req.RegisterNumber
		}
		if latest := revaluation.LatestAttempt(prior, courseID); latest != nil {
			reg.PreviousRevaluationID = stringPtr(latest.ID)
		}
		regs = append(regs, reg)
	}

	if err := s.regs.CreateBatch(ctx, regs); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(examReg.ID, "a revaluation for one of the selected courses was filed concurrently")
		}
		return nil, fmt.Errorf("failed to create registrations: %w", err)
	}

	for i := range regs {
		s.committed(ctx, "", &regs[i], req.RegisterNumber)
	}
	s.logger.Info().
		Str("exam_registration_id", examReg.ID).
		Int("courses", len(regs)).
		Float64("payment_amount", req.PaymentAmount).
		Msg("Revaluation application created")

	return &models.ApplicationResponse{
		Registrations: regs,
		FeePerCourse:  fee.FeePerCourse,
		TotalFee:      totalFee,
	}, nil
}

func (s *applicationService) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	return s.load(ctx, id)
}

func (s *applicationService) List(ctx context.Context, filter models.RegistrationFilter, page, limit int) (*models.RegistrationsResponse, error) {
	for _, st := range filter.Statuses {
		if !models.IsValidRegistrationStatus(string(st)) {
			return nil, apperr.Validation("invalid status filter", apperr.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", st)})
		}
	}
	if filter.PaymentStatus != "" && !models.IsValidPaymentStatus(string(filter.PaymentStatus)) {
		return nil, apperr.Validation("invalid payment status filter", apperr.FieldError{Field: "payment_status", Message: fmt.Sprintf("unknown payment status %q", filter.PaymentStatus)})
	}

	page, limit = normalizePage(page, limit, s.settings)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	regs, total, err := s.regs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	if regs == nil {
		regs = []models.Registration{}
	}

	return &models.RegistrationsResponse{
		Registrations: regs,
		Total:         total,
		Page:          page,
		Limit:         limit,
	}, nil
}

func (s *applicationService) ListSessions(ctx context.Context, institutionsID string) ([]models.ExaminationSession, error) {
	if strings.TrimSpace(institutionsID) == "" {
		return nil, apperr.Validation("institution is required", apperr.FieldError{Field: "institutions_id", Message: "is required"})
	}
	return s.exams.ListSessions(ctx, institutionsID)
}

func (s *applicationService) VerifyPayment(ctx context.Context, id, actor string) (*models.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	verified := models.PaymentVerified
	return s.move(ctx, reg, models.StatusPaymentVerified, models.RegistrationPatch{
		PaymentStatus:       &verified,
		PaymentVerifiedBy:   stringPtr(actor),
		PaymentVerifiedDate: timePtr(now),
	}, actor)
}

// RejectPayment refuses the payment proof, which ends the registration.
func (s *applicationService) RejectPayment(ctx context.Context, id, reason, actor string) (*models.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := requireReason(reason); err != nil {
		return nil, err
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.StatusPaymentPending {
		if err := checkOpen(reg); err != nil {
			return nil, err
		}
		return nil, apperr.Conflict(id, fmt.Sprintf("payment can only be rejected while %s, current status is %s", models.StatusPaymentPending, reg.Status))
	}

	now := s.now()
	rejected := models.PaymentRejected
	return s.move(ctx, reg, models.StatusCancelled, models.RegistrationPatch{
		PaymentStatus:       &rejected,
		PaymentVerifiedBy:   stringPtr(actor),
		PaymentVerifiedDate: timePtr(now),
		CancellationReason:  stringPtr("Payment rejected: " + strings.TrimSpace(reason)),
	}, actor)
}

func (s *applicationService) Approve(ctx context.Context, id, actor string) (*models.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.move(ctx, reg, models.StatusApproved, models.RegistrationPatch{
		ApprovedBy:   stringPtr(actor),
		ApprovedDate: timePtr(s.now()),
	}, actor)
}

func (s *applicationService) Reject(ctx context.Context, id, reason, actor string) (*models.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := requireReason(reason); err != nil {
		return nil, err
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.move(ctx, reg, models.StatusRejected, models.RegistrationPatch{
		RejectionReason: stringPtr(strings.TrimSpace(reason)),
	}, actor)
}

func (s *applicationService) Cancel(ctx context.Context, id, reason, actor string) (*models.Registration, error) {
	if err := requireReason(reason); err != nil {
		return nil, err
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.move(ctx, reg, models.StatusCancelled, models.RegistrationPatch{
		CancellationReason: stringPtr(strings.TrimSpace(reason)),
	}, actor)
}

func (s *applicationService) UploadReceipt(ctx context.Context, id, fileName string, r io.Reader, size int64, contentType string) (*models.ReceiptResponse, error) {
	if s.receipts == nil {
		return nil, apperr.External("receipt storage", errors.New("storage is not configured"))
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.StatusPaymentPending {
		if err := checkOpen(reg); err != nil {
			return nil, err
		}
		return nil, apperr.Conflict(id, "receipts can only be attached while payment is pending")
	}

	key := fmt.Sprintf("receipts/%s/%s%s", reg.ID, uuid.New().String(), strings.ToLower(path.Ext(fileName)))
	if err := s.receipts.Put(ctx, key, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.regs.SetReceipt(ctx, reg.ID, key, models.StatusPaymentPending); err != nil {
		return nil, s.writeError(ctx, reg.ID, err)
	}

	s.logger.Info().
		Str("registration_id", reg.ID).
		Str("object_key", key).
		Int64("size", size).
		Msg("Payment receipt attached")

	return &models.ReceiptResponse{RegistrationID: reg.ID, ObjectKey: key}, nil
}

func (s *applicationService) GetReceipt(ctx context.Context, id string) (*models.ReceiptResponse, error) {
	if s.receipts == nil {
		return nil, apperr.External("receipt storage", errors.New("storage is not configured"))
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.ReceiptObjectKey == nil {
		return nil, apperr.NotFound("receipt", id)
	}

	url, err := s.receipts.PresignedURL(ctx, *reg.ReceiptObjectKey, s.settings.ReceiptURLExpiry)
	if err != nil {
		return nil, err
	}
	return &models.ReceiptResponse{
		RegistrationID: reg.ID,
		ObjectKey:      *reg.ReceiptObjectKey,
		URL:            url,
		ExpiresAt:      s.now().Add(s.settings.ReceiptURLExpiry),
	}, nil
}

// checkOpen rejects any further work on a terminal registration.
func checkOpen(reg *models.Registration) error {
	switch reg.Status {
	case models.StatusCancelled:
		return apperr.Conflict(reg.ID, "registration is cancelled")
	case models.StatusPublished:
		return apperr.Conflict(reg.ID, "registration is already published")
	case models.StatusRejected:
		return apperr.Conflict(reg.ID, "registration is rejected")
	}
	return nil
}
