package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
)

type ReportService interface {
	Statistics(ctx context.Context, scope models.Scope) (*models.Statistics, error)
	CourseAnalysis(ctx context.Context, scope models.Scope) (*models.CourseAnalysisReport, error)
}

type reportService struct {
	regs   repository.RegistrationRepository
	finals repository.FinalMarksRepository
	logger zerolog.Logger
}

func NewReportService(regs repository.RegistrationRepository, finals repository.FinalMarksRepository, logger zerolog.Logger) ReportService {
	return &reportService{regs: regs, finals: finals, logger: logger}
}

func (s *reportService) scoped(ctx context.Context, scope models.Scope) ([]models.Registration, int, error) {
	if strings.TrimSpace(scope.InstitutionsID) == "" {
		return nil, 0, apperr.Validation("institution is required", apperr.FieldError{Field: "institutions_id", Message: "is required"})
	}

	regs, total, err := s.regs.List(ctx, models.RegistrationFilter{
		InstitutionsID:       scope.InstitutionsID,
		ExaminationSessionID: scope.ExaminationSessionID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, total, nil
}

func (s *reportService) publishedFinals(ctx context.Context, regs []models.Registration) (map[string]models.FinalMarks, error) {
	var published []string
	for i := range regs {
		if regs[i].Status == models.StatusPublished {
			published = append(published, regs[i].ID)
		}
	}
	if len(published) == 0 {
		return map[string]models.FinalMarks{}, nil
	}

	finals, err := s.finals.ListByRegistrationIDs(ctx, published)
	if err != nil {
		return nil, fmt.Errorf("failed to list final marks: %w", err)
	}
	return finals, nil
}

func (s *reportService) Statistics(ctx context.Context, scope models.Scope) (*models.Statistics, error) {
	regs, total, err := s.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}

	stats := &models.Statistics{
		TotalApplications:      total,
		StatusBreakdown:        make(map[string]int),
		PaymentStatusBreakdown: make(map[string]int),
		AttemptDistribution:    make(map[int]int),
	}

	for i := range regs {
		reg := &regs[i]
		stats.StatusBreakdown[reg.Status.String()]++
		stats.PaymentStatusBreakdown[reg.PaymentStatus.String()]++
		stats.AttemptDistribution[reg.AttemptNumber]++
		if reg.PaymentStatus == models.PaymentVerified {
			stats.FeeCollected += reg.FeeAmount
		}
	}
	stats.FeeCollected = revaluation.Round2(stats.FeeCollected)

	finals, err := s.publishedFinals(ctx, regs)
	if err != nil {
		return nil, err
	}
	if len(finals) == 0 {
		return stats, nil
	}

	var (
		a              models.PublishedAnalysis
		absChange      float64
		turnaroundDays float64
		turnarounds    int
	)
	for i := range regs {
		reg := &regs[i]
		if reg.Status != models.StatusPublished {
			continue
		}
		if reg.PublishedDate != nil {
			turnaroundDays += reg.PublishedDate.Sub(reg.ApplicationDate).Hours() / 24
			turnarounds++
		}
		if reg.UseRevaluationMarks != nil && *reg.UseRevaluationMarks {
			a.RevaluationUsed++
		}

		fm, ok := finals[reg.ID]
		if !ok {
			s.logger.Warn().Str("registration_id", reg.ID).Msg("Published registration without final marks")
			continue
		}
		a.Total++
		rec := revaluation.Compare(fm.OriginalFigures(), fm.Figures())
		switch {
		case rec.MarksDifference > 0:
			a.MarksIncreased++
		case rec.MarksDifference < 0:
			a.MarksDecreased++
		default:
			a.MarksUnchanged++
		}
		if rec.PassStatusChanged {
			if fm.IsPass {
				a.FailToPass++
			} else {
				a.PassToFail++
			}
		}
		absChange += math.Abs(rec.MarksDifference)
	}

	if a.Total > 0 {
		a.ImprovementRate = revaluation.Round2(float64(a.MarksIncreased) / float64(a.Total) * 100)
		a.AvgMarkChange = revaluation.Round2(absChange / float64(a.Total))
	}
	if turnarounds > 0 {
		stats.AvgTurnaroundDays = revaluation.Round2(turnaroundDays / float64(turnarounds))
	}
	stats.Published = a

	return stats, nil
}

// CourseAnalysis groups the scope by course, busiest course first.
func (s *reportService) CourseAnalysis(ctx context.Context, scope models.Scope) (*models.CourseAnalysisReport, error) {
	regs, _, err := s.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	finals, err := s.publishedFinals(ctx, regs)
	if err != nil {
		return nil, err
	}

	byCourse := make(map[string]*models.CourseAnalysis)
	absChange := make(map[string]float64)
	var order []string
	for i := range regs {
		reg := &regs[i]
		course, ok := byCourse[reg.CourseID]
		if !ok {
			course = &models.CourseAnalysis{
				CourseID:    reg.CourseID,
				CourseCode:  reg.CourseCode,
				CourseTitle: reg.CourseTitle,
			}
			byCourse[reg.CourseID] = course
			order = append(order, reg.CourseID)
		}
		course.TotalRevaluations++

		if reg.Status != models.StatusPublished {
			continue
		}
		fm, ok := finals[reg.ID]
		if !ok {
			s.logger.Warn().Str("registration_id", reg.ID).Msg("Published registration without final marks")
			continue
		}

		course.PublishedCount++
		rec := revaluation.Compare(fm.OriginalFigures(), fm.Figures())
		switch {
		case rec.MarksDifference > 0:
			course.MarksIncreased++
			course.MaxMarksIncrease = math.Max(course.MaxMarksIncrease, rec.MarksDifference)
		case rec.MarksDifference < 0:
			course.MarksDecreased++
			course.MaxMarksDecrease = math.Min(course.MaxMarksDecrease, rec.MarksDifference)
		default:
			course.MarksUnchanged++
		}
		if rec.PassStatusChanged {
			if fm.IsPass {
				course.FailToPass++
			} else {
				course.PassToFail++
			}
		}
		absChange[reg.CourseID] += math.Abs(rec.MarksDifference)
	}

	report := &models.CourseAnalysisReport{Courses: make([]models.CourseAnalysis, 0, len(order))}
	for _, id := range order {
		course := byCourse[id]
		if course.PublishedCount > 0 {
			published := float64(course.PublishedCount)
			course.AvgMarkChange = revaluation.Round2(absChange[id] / published)
			course.ImprovementRate = revaluation.Round2(float64(course.MarksIncreased) / published * 100)
			course.PassRateImprovement = revaluation.Round2(float64(course.FailToPass-course.PassToFail) / published * 100)
		}
		course.PublicationRate = revaluation.Round2(float64(course.PublishedCount) / float64(course.TotalRevaluations) * 100)
		report.Courses = append(report.Courses, *course)
	}

	sort.SliceStable(report.Courses, func(i, j int) bool {
		if report.Courses[i].TotalRevaluations != report.Courses[j].TotalRevaluations {
			return report.Courses[i].TotalRevaluations > report.Courses[j].TotalRevaluations
		}
		return report.Courses[i].CourseCode < report.Courses[j].CourseCode
	})
	report.TotalCourses = len(report.Courses)
	return report, nil
}
