package service

import (
	"context"
	"errors"
	"fmt"
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

// EvaluationService is the examiner-facing surface. Everything it returns to
// an examiner is a models.BlindScript.
type EvaluationService interface {
	ListScripts(ctx context.Context, examinerID string) ([]models.BlindScript, error)
	GetScript(ctx context.Context, examinerID, scriptCode string) (*models.BlindScript, error)
	SaveMarks(ctx context.Context, examinerID, scriptCode string, req *models.SaveMarksRequest) (*models.BlindScript, error)
	Finalize(ctx context.Context, examinerID, scriptCode string) (*models.BlindScript, error)
	Verify(ctx context.Context, registrationID, actor string) (*models.Registration, error)
}

var examinerVisibleStatuses = []models.RegistrationStatus{
	models.StatusAssigned,
	models.StatusInProgress,
	models.StatusEvaluated,
}

type evaluationService struct {
	*workflow
	marks  repository.MarksRepository
	finals repository.FinalMarksRepository
	exams  integration.ExamClient
}

func NewEvaluationService(
	regs repository.RegistrationRepository,
	marks repository.MarksRepository,
	finals repository.FinalMarksRepository,
	exams integration.ExamClient,
	events integration.EventPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) EvaluationService {
	return &evaluationService{
		workflow: &workflow{regs: regs, events: events, metrics: m, logger: logger},
		marks:    marks,
		finals:   finals,
		exams:    exams,
	}
}

func (s *evaluationService) ListScripts(ctx context.Context, examinerID string) ([]models.BlindScript, error) {
	if err := requireActor(examinerID); err != nil {
		return nil, err
	}

	regs, _, err := s.regs.List(ctx, models.RegistrationFilter{
		ExaminerID: examinerID,
		Statuses:   examinerVisibleStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}

	scripts := make([]models.BlindScript, 0, len(regs))
	for i := range regs {
		entry, err := s.marks.GetByRegistrationID(ctx, regs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get marks entry: %w", err)
		}
		scripts = append(scripts, blindView(&regs[i], entry))
	}
	return scripts, nil
}

func (s *evaluationService) GetScript(ctx context.Context, examinerID, scriptCode string) (*models.BlindScript, error) {
	reg, err := s.script(ctx, examinerID, scriptCode)
	if err != nil {
		return nil, err
	}
	entry, err := s.marks.GetByRegistrationID(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get marks entry: %w", err)
	}

	view := blindView(reg, entry)
	return &view, nil
}

// script resolves a script code for the examiner it is assigned to. Codes
// assigned to someone else are reported as not found.
func (s *evaluationService) script(ctx context.Context, examinerID, scriptCode string) (*models.Registration, error) {
	if err := requireActor(examinerID); err != nil {
		return nil, err
	}
	reg, err := s.regs.GetByScriptCode(ctx, scriptCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	if reg == nil || reg.ExaminerID == nil || *reg.ExaminerID != examinerID {
		return nil, apperr.NotFound("script", scriptCode)
	}
	if err := checkOpen(reg); err != nil {
		return nil, apperr.Conflict(scriptCode, apperr.Reason(err))
	}
	return reg, nil
}

func validateMarks(req *models.SaveMarksRequest) error {
	var fields []apperr.FieldError
	if req.MarksOutOf <= 0 {
		fields = append(fields, apperr.FieldError{Field: "marks_out_of", Message: "must be greater than 0"})
	}
	switch {
	case req.MarksObtained == nil:
		fields = append(fields, apperr.FieldError{Field: "marks_obtained", Message: "is required"})
	case *req.MarksObtained < 0:
		fields = append(fields, apperr.FieldError{Field: "marks_obtained", Message: "must not be negative"})
	case req.MarksOutOf > 0 && *req.MarksObtained > req.MarksOutOf:
		fields = append(fields, apperr.FieldError{Field: "marks_obtained", Message: "must not exceed marks_out_of"})
	}

	var sum float64
	for q, v := range req.QuestionWiseMarks {
		if v < 0 {
			fields = append(fields, apperr.FieldError{Field: "question_wise_marks." + q, Message: "must not be negative"})
		}
		sum += v
	}
	if len(req.QuestionWiseMarks) > 0 && req.MarksOutOf > 0 && sum > req.MarksOutOf {
		fields = append(fields, apperr.FieldError{Field: "question_wise_marks", Message: "total exceeds marks_out_of"})
	}

	if len(fields) > 0 {
		return apperr.Validation("invalid marks", fields...)
	}
	return nil
}

// SaveMarks stores the examiner's draft. The first save starts the
// evaluation (Assigned -> In Progress) in the same write.
func (s *evaluationService) SaveMarks(ctx context.Context, examinerID, scriptCode string, req *models.SaveMarksRequest) (*models.BlindScript, error) {
	if err := validateMarks(req); err != nil {
		return nil, err
	}
	reg, err := s.script(ctx, examinerID, scriptCode)
	if err != nil {
		return nil, err
	}
	original, err := s.originalResult(ctx, reg)
	if err != nil {
		return nil, err
	}
	if external := revaluation.ExternalMaximum(*original); revaluation.Round2(req.MarksOutOf) != external {
		return nil, apperr.Validation("invalid marks", apperr.FieldError{
			Field:   "marks_out_of",
			Message: fmt.Sprintf("must equal the external maximum of the course (%g)", external),
		})
	}

	now := s.now()
	var start *models.Transition
	switch reg.Status {
	case models.StatusAssigned:
		start = &models.Transition{
			RegistrationID: reg.ID,
			From:           []models.RegistrationStatus{models.StatusAssigned},
			To:             models.StatusInProgress,
			At:             now,
		}
	case models.StatusInProgress:
	default:
		return nil, apperr.Conflict(scriptCode, fmt.Sprintf("marks can no longer be changed, current status is %s", reg.Status))
	}

	entry := &models.MarksEntry{
		ID:                uuid.New().String(),
		RegistrationID:    reg.ID,
		ExaminerID:        examinerID,
		MarksObtained:     *req.MarksObtained,
		MarksOutOf:        req.MarksOutOf,
		QuestionWiseMarks: req.QuestionWiseMarks,
		EvaluatorRemarks:  req.EvaluatorRemarks,
		EntryStatus:       models.EntryDraft,
		UpdatedAt:         now,
	}

	updated, err := s.marks.SaveDraft(ctx, entry, start)
	if err != nil {
		return nil, s.scriptError(ctx, reg, err)
	}
	if updated != nil {
		s.committed(ctx, models.StatusAssigned, updated, examinerID)
		reg = updated
	}

	view := blindView(reg, entry)
	return &view, nil
}

// Finalize freezes the draft, computes the final marks with the grading
// rules of the course and moves the registration to Evaluated.
func (s *evaluationService) Finalize(ctx context.Context, examinerID, scriptCode string) (*models.BlindScript, error) {
	reg, err := s.script(ctx, examinerID, scriptCode)
	if err != nil {
		return nil, err
	}
	if err := revaluation.CheckTransition(scriptCode, reg.Status, models.StatusEvaluated); err != nil {
		if reg.Status == models.StatusAssigned {
			return nil, apperr.Invalid(scriptCode, "no marks have been entered")
		}
		return nil, err
	}

	entry, err := s.marks.GetByRegistrationID(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get marks entry: %w", err)
	}
	if entry == nil {
		return nil, apperr.Invalid(scriptCode, "no marks have been entered")
	}

	original, err := s.originalResult(ctx, reg)
	if err != nil {
		return nil, err
	}
	scale, err := s.exams.GetGradingScale(ctx, reg.CourseID)
	if err != nil {
		return nil, err
	}

	fm, err := revaluation.ComputeFinalMarks(*original, *entry, *scale)
	if errors.Is(err, revaluation.ErrScaleMismatch) {
		return nil, apperr.Validation("marks were not entered out of the course external maximum",
			apperr.FieldError{Field: "marks_out_of", Message: fmt.Sprintf("must equal %g, save the marks again", revaluation.ExternalMaximum(*original))})
	}
	if err != nil {
		return nil, apperr.External("exam service", fmt.Errorf("result %s: %w", original.FinalMarksID, err))
	}
	now := s.now()
	fm.ID = uuid.New().String()
	fm.CalculatedBy = examinerID
	fm.CreatedAt = now

	updated, err := s.finals.CreateOnEvaluated(ctx, &fm, entry.UpdatedAt, models.Transition{
		RegistrationID: reg.ID,
		From:           []models.RegistrationStatus{models.StatusInProgress},
		To:             models.StatusEvaluated,
		At:             now,
	})
	if err != nil {
		return nil, s.scriptError(ctx, reg, err)
	}
	s.committed(ctx, models.StatusInProgress, updated, examinerID)

	entry.EntryStatus = models.EntrySubmitted
	view := blindView(updated, entry)
	return &view, nil
}

func (s *evaluationService) Verify(ctx context.Context, registrationID, actor string) (*models.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reg, err := s.load(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.StatusEvaluated {
		fm, err := s.finals.GetByRegistrationID(ctx, reg.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get final marks: %w", err)
		}
		if fm == nil {
			return nil, apperr.NotFound("final marks", reg.ID)
		}
	}

	return s.move(ctx, reg, models.StatusVerified, models.RegistrationPatch{
		VerifiedBy:   stringPtr(actor),
		VerifiedDate: timePtr(s.now()),
	}, actor)
}

func (s *evaluationService) originalResult(ctx context.Context, reg *models.Registration) (*models.CourseResult, error) {
	results, err := s.exams.GetResults(ctx, reg.ExamRegistrationID)
	if err != nil {
		return nil, err
	}
	return matchResult(results, reg)
}

// scriptError reports write failures against the script code so the
// registration id never reaches the examiner.
func (s *evaluationService) scriptError(ctx context.Context, reg *models.Registration, err error) error {
	mapped := s.writeError(ctx, reg.ID, err)
	appErr, ok := apperr.As(mapped)
	if !ok {
		return mapped
	}
	if errors.Is(err, repository.ErrStaleStatus) || errors.Is(err, repository.ErrEntryLocked) || errors.Is(err, repository.ErrDraftChanged) || appErr.EntityID == reg.ID {
		msg := strings.ReplaceAll(appErr.Message, reg.ID, *reg.ScriptCode)
		return &apperr.Error{Kind: appErr.Kind, Message: msg, EntityID: *reg.ScriptCode}
	}
	return mapped
}

func blindView(reg *models.Registration, entry *models.MarksEntry) models.BlindScript {
	view := models.BlindScript{
		CourseCode:         reg.CourseCode,
		CourseTitle:        reg.CourseTitle,
		AttemptNumber:      reg.AttemptNumber,
		Status:             reg.Status,
		EvaluationDeadline: reg.EvaluationDeadline,
	}
	if reg.ScriptCode != nil {
		view.ScriptCode = *reg.ScriptCode
	}
	if entry != nil {
		view.Entry = &models.BlindEntry{
			MarksObtained:     entry.MarksObtained,
			MarksOutOf:        entry.MarksOutOf,
			QuestionWiseMarks: entry.QuestionWiseMarks,
			EvaluatorRemarks:  entry.EvaluatorRemarks,
			EntryStatus:       entry.EntryStatus,
		}
	}
	return view
}
