package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/service/integration"
)

// Assignable statuses. Payment Verified rows are approved implicitly by the
// assignment.
var assignableStatuses = []models.RegistrationStatus{models.StatusApproved, models.StatusPaymentVerified}

type AssignmentService interface {
	ListAssignable(ctx context.Context, scope models.Scope, page, limit int) (*models.RegistrationsResponse, error)
	ListExaminers(ctx context.Context, institutionsID string) ([]models.Examiner, error)
	Assign(ctx context.Context, req *models.AssignRequest, actor string) (*models.BatchResult, error)
}

type assignmentService struct {
	*workflow
	exams     integration.ExamClient
	examiners integration.ExaminerClient
	settings  Settings
}

func NewAssignmentService(
	regs repository.RegistrationRepository,
	exams integration.ExamClient,
	examiners integration.ExaminerClient,
	events integration.EventPublisher,
	m *metrics.Metrics,
	settings Settings,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		workflow:  &workflow{regs: regs, events: events, metrics: m, logger: logger},
		exams:     exams,
		examiners: examiners,
		settings:  settings,
	}
}

func (s *assignmentService) ListAssignable(ctx context.Context, scope models.Scope, page, limit int) (*models.RegistrationsResponse, error) {
	page, limit = normalizePage(page, limit, s.settings)
	regs, total, err := s.regs.List(ctx, models.RegistrationFilter{
		InstitutionsID:       scope.InstitutionsID,
		ExaminationSessionID: scope.ExaminationSessionID,
		Statuses:             assignableStatuses,
		Limit:                limit,
		Offset:               (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignable registrations: %w", err)
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	return &models.RegistrationsResponse{Registrations: regs, Total: total, Page: page, Limit: limit}, nil
}

func (s *assignmentService) ListExaminers(ctx context.Context, institutionsID string) ([]models.Examiner, error) {
	if strings.TrimSpace(institutionsID) == "" {
		return nil, apperr.Validation("institution is required", apperr.FieldError{Field: "institutions_id", Message: "is required"})
	}
	return s.examiners.ListActive(ctx, institutionsID)
}

// Assign binds every listed registration to one examiner. Rows fail
// independently; the examiner itself must resolve or nothing is attempted.
func (s *assignmentService) Assign(ctx context.Context, req *models.AssignRequest, actor string) (*models.BatchResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if len(req.RegistrationIDs) == 0 {
		return nil, apperr.Validation("no registrations selected", apperr.FieldError{Field: "registration_ids", Message: "at least one id is required"})
	}
	if strings.TrimSpace(req.ExaminerID) == "" {
		return nil, apperr.Validation("examiner is required", apperr.FieldError{Field: "examiner_id", Message: "is required"})
	}

	examiner, err := s.examiners.Get(ctx, req.ExaminerID)
	if err != nil {
		return nil, err
	}
	if !examiner.IsActive {
		return nil, apperr.Invalid(examiner.ID, "examiner is not active")
	}

	a := &assignment{
		assignmentService: s,
		examinerID:        examiner.ID,
		actor:             actor,
		originals:         make(map[string]map[string]string),
		result:            models.NewBatchResult(),
	}
	seen := make(map[string]bool, len(req.RegistrationIDs))
	for _, id := range req.RegistrationIDs {
		if seen[id] {
			a.fail(id, apperr.Invalid(id, "registration listed more than once"))
			continue
		}
		seen[id] = true

		if err := a.assignOne(ctx, id); err != nil {
			a.fail(id, err)
			continue
		}
		a.result.Ok(id)
		s.metrics.BatchRow("assign", true)
	}

	s.logger.Info().
		Str("examiner_id", examiner.ID).
		Int("assigned", a.result.SucceededCount).
		Int("failed", a.result.FailedCount).
		Msg("Assignment batch processed")

	return a.result, nil
}

// assignment is the per-call accumulator for one batch.
type assignment struct {
	*assignmentService
	examinerID string
	actor      string
	// exam registration id -> course id -> original examiner id
	originals map[string]map[string]string
	result    *models.BatchResult
}

func (a *assignment) fail(id string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		a.logger.Error().Err(err).Str("registration_id", id).Msg("Assignment failed")
	}
	a.result.Fail(id, string(apperr.KindOf(err)), apperr.Reason(err))
	a.metrics.BatchRow("assign", false)
}

func (a *assignment) assignOne(ctx context.Context, id string) error {
	reg, err := a.load(ctx, id)
	if err != nil {
		return err
	}

	switch reg.Status {
	case models.StatusApproved, models.StatusPaymentVerified:
	case models.StatusAssigned, models.StatusInProgress:
		return apperr.Conflict(id, "registration is already assigned to an examiner")
	case models.StatusCancelled, models.StatusPublished, models.StatusRejected:
		return checkOpen(reg)
	default:
		return apperr.Conflict(id, fmt.Sprintf("registration is not awaiting assignment, current status is %s", reg.Status))
	}
	if reg.ExaminerID != nil {
		return apperr.Conflict(id, "registration is already assigned to an examiner")
	}

	if err := a.checkExclusion(ctx, reg); err != nil {
		return err
	}

	now := a.now()
	patch := models.RegistrationPatch{
		ExaminerID:         stringPtr(a.examinerID),
		ScriptCode:         stringPtr(a.scriptCode()),
		AssignedDate:       timePtr(now),
		EvaluationDeadline: timePtr(now.Add(a.settings.EvaluationDeadlineOffset)),
	}
	if reg.Status == models.StatusPaymentVerified {
		patch.ApprovedBy = stringPtr(a.actor)
		patch.ApprovedDate = timePtr(now)
	}

	updated, err := a.regs.Transition(ctx, models.Transition{
		RegistrationID: id,
		From:           []models.RegistrationStatus{reg.Status},
		To:             models.StatusAssigned,
		Patch:          patch,
		At:             now,
	})
	if err != nil {
		return a.writeError(ctx, id, err)
	}

	a.committed(ctx, reg.Status, updated, a.actor)
	return nil
}

// checkExclusion refuses examiners who already marked this script, either
// originally or in an earlier revaluation attempt.
func (a *assignment) checkExclusion(ctx context.Context, reg *models.Registration) error {
	originals, ok := a.originals[reg.ExamRegistrationID]
	if !ok {
		results, err := a.exams.GetResults(ctx, reg.ExamRegistrationID)
		if err != nil {
			return err
		}
		originals = make(map[string]string, len(results))
		for _, r := range results {
			originals[r.CourseID] = r.OriginalExaminerID
		}
		a.originals[reg.ExamRegistrationID] = originals
	}
	if originals[reg.CourseID] == a.examinerID {
		return apperr.Invalid(reg.ID, "examiner evaluated the original script")
	}

	history, err := a.regs.ListByExamRegistration(ctx, reg.ExamRegistrationID)
	if err != nil {
		return fmt.Errorf("failed to list previous attempts: %w", err)
	}
	for _, prev := range history {
		if prev.ID == reg.ID || prev.CourseID != reg.CourseID {
			continue
		}
		if prev.ExaminerID != nil && *prev.ExaminerID == a.examinerID {
			return apperr.Invalid(reg.ID, fmt.Sprintf("examiner evaluated revaluation attempt %d of this script", prev.AttemptNumber))
		}
	}
	return nil
}

func (a *assignment) scriptCode() string {
	code := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%s", a.settings.ScriptCodePrefix, strings.ToUpper(code))
}
