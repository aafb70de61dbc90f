package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
	"github.com/RubachokBoss/revaluation-service/internal/service/integration"
)

// ComparisonService diffs original results against revaluation results. It
// only reads.
type ComparisonService interface {
	ListComparisons(ctx context.Context, scope models.Scope) (*models.ComparisonReport, error)
	GetComparison(ctx context.Context, registrationID string) (*models.ComparisonItem, error)
}

type comparisonService struct {
	regs   repository.RegistrationRepository
	finals repository.FinalMarksRepository
	exams  integration.ExamClient
	logger zerolog.Logger
}

func NewComparisonService(
	regs repository.RegistrationRepository,
	finals repository.FinalMarksRepository,
	exams integration.ExamClient,
	logger zerolog.Logger,
) ComparisonService {
	return &comparisonService{
		regs:   regs,
		finals: finals,
		exams:  exams,
		logger: logger,
	}
}

// ListComparisons compares every Verified registration in scope against the
// current original result. Rows whose inputs cannot be resolved are reported
// in Errors and left out of the summary.
func (s *comparisonService) ListComparisons(ctx context.Context, scope models.Scope) (*models.ComparisonReport, error) {
	if strings.TrimSpace(scope.InstitutionsID) == "" {
		return nil, apperr.Validation("institution is required", apperr.FieldError{Field: "institutions_id", Message: "is required"})
	}

	regs, _, err := s.regs.List(ctx, models.RegistrationFilter{
		InstitutionsID:       scope.InstitutionsID,
		ExaminationSessionID: scope.ExaminationSessionID,
		Statuses:             []models.RegistrationStatus{models.StatusVerified},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list verified registrations: %w", err)
	}

	ids := make([]string, len(regs))
	for i := range regs {
		ids[i] = regs[i].ID
	}
	finals, err := s.finals.ListByRegistrationIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list final marks: %w", err)
	}

	report := &models.ComparisonReport{Items: []models.ComparisonItem{}}
	originals := newResultCache(s.exams)
	for i := range regs {
		reg := &regs[i]
		fm, ok := finals[reg.ID]
		if !ok {
			report.Errors = append(report.Errors, models.BatchItemError{
				ID:     reg.ID,
				Kind:   string(apperr.KindNotFound),
				Reason: "final marks not found",
			})
			continue
		}
		original, err := originals.find(ctx, reg)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindExternalDependency {
				return nil, err
			}
			report.Errors = append(report.Errors, models.BatchItemError{
				ID:     reg.ID,
				Kind:   string(apperr.KindOf(err)),
				Reason: apperr.Reason(err),
			})
			continue
		}
		report.Items = append(report.Items, comparisonItem(reg, &fm, original.Figures()))
	}
	report.Summary = revaluation.Summarize(report.Items)

	s.logger.Debug().
		Str("institutions_id", scope.InstitutionsID).
		Int("compared", len(report.Items)).
		Int("errors", len(report.Errors)).
		Msg("Comparison report built")

	return report, nil
}

// GetComparison returns the comparison for one registration. Published rows
// are compared against the original figures captured at evaluation, since
// the live result already carries the published decision.
func (s *comparisonService) GetComparison(ctx context.Context, registrationID string) (*models.ComparisonItem, error) {
	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	if reg == nil {
		return nil, apperr.NotFound("registration", registrationID)
	}
	if reg.Status != models.StatusVerified && reg.Status != models.StatusPublished {
		if err := checkOpen(reg); err != nil {
			return nil, err
		}
		return nil, apperr.Conflict(reg.ID, fmt.Sprintf("comparison is available once verified, current status is %s", reg.Status))
	}

	fm, err := s.finals.GetByRegistrationID(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get final marks: %w", err)
	}
	if fm == nil {
		return nil, apperr.NotFound("final marks", reg.ID)
	}

	original := fm.OriginalFigures()
	if reg.Status == models.StatusVerified {
		live, err := newResultCache(s.exams).find(ctx, reg)
		if err != nil {
			return nil, err
		}
		original = live.Figures()
	}

	item := comparisonItem(reg, fm, original)
	return &item, nil
}

func comparisonItem(reg *models.Registration, fm *models.FinalMarks, original models.MarkSet) models.ComparisonItem {
	reval := fm.Figures()
	return models.ComparisonItem{
		RegistrationID:        reg.ID,
		FinalMarksID:          fm.ID,
		StudentRegisterNumber: reg.StudentRegisterNumber,
		StudentName:           reg.StudentName,
		CourseCode:            reg.CourseCode,
		CourseTitle:           reg.CourseTitle,
		AttemptNumber:         reg.AttemptNumber,
		Status:                reg.Status,
		Original:              original,
		Revaluation:           reval,
		Comparison:            revaluation.Compare(original, reval),
	}
}

// resultCache fetches original results once per exam registration.
type resultCache struct {
	exams   integration.ExamClient
	results map[string][]models.CourseResult
}

func newResultCache(exams integration.ExamClient) *resultCache {
	return &resultCache{exams: exams, results: make(map[string][]models.CourseResult)}
}

func (c *resultCache) find(ctx context.Context, reg *models.Registration) (*models.CourseResult, error) {
	results, ok := c.results[reg.ExamRegistrationID]
	if !ok {
		var err error
		results, err = c.exams.GetResults(ctx, reg.ExamRegistrationID)
		if err != nil {
			return nil, err
		}
		c.results[reg.ExamRegistrationID] = results
	}
	return matchResult(results, reg)
}

// matchResult picks the original result row a registration was filed
// against, falling back to the course when the row id has changed.
func matchResult(results []models.CourseResult, reg *models.Registration) (*models.CourseResult, error) {
	for i := range results {
		if results[i].FinalMarksID == reg.OriginalFinalMarksID {
			return &results[i], nil
		}
	}
	for i := range results {
		if results[i].CourseID == reg.CourseID {
			return &results[i], nil
		}
	}
	return nil, apperr.NotFound("original result", reg.OriginalFinalMarksID)
}
