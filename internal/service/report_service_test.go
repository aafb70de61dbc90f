package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

func TestCourseAnalysis(t *testing.T) {
	type published struct {
		id, courseID string
		external     float64
	}

	tests := []struct {
		name      string
		published []published
		seeded    []models.Registration
		expected  []models.CourseAnalysis
	}{
		{
			name:      "fail to pass",
			published: []published{{"r1", "c1", 45}},
			expected: []models.CourseAnalysis{{
				CourseID: "c1", CourseCode: "CSc1", CourseTitle: "Course c1",
				TotalRevaluations: 1, PublishedCount: 1,
				MarksIncreased: 1, FailToPass: 1,
				MaxMarksIncrease: 20, AvgMarkChange: 20,
				ImprovementRate: 100, PassRateImprovement: 100, PublicationRate: 100,
			}},
		},
		{
			name:      "pass to fail",
			published: []published{{"r1", "c2", 20}},
			expected: []models.CourseAnalysis{{
				CourseID: "c2", CourseCode: "CSc2", CourseTitle: "Course c2",
				TotalRevaluations: 1, PublishedCount: 1,
				MarksDecreased: 1, PassToFail: 1,
				MaxMarksDecrease: -27, AvgMarkChange: 27,
				PassRateImprovement: -100, PublicationRate: 100,
			}},
		},
		{
			name:      "unchanged and unpublished",
			published: []published{{"r1", "c2", 47}},
			seeded:    []models.Registration{seededRegistration("r2", "c1", 1, models.StatusPaymentPending)},
			expected: []models.CourseAnalysis{
				{
					CourseID: "c1", CourseCode: "CSc1", CourseTitle: "Course c1",
					TotalRevaluations: 1,
				},
				{
					CourseID: "c2", CourseCode: "CSc2", CourseTitle: "Course c2",
					TotalRevaluations: 1, PublishedCount: 1, MarksUnchanged: 1,
					PublicationRate: 100,
				},
			},
		},
		{
			name:      "busiest course first",
			published: []published{{"r1", "c2", 30}, {"r2", "c1", 45}},
			seeded:    []models.Registration{seededRegistration("r3", "c1", 2, models.StatusCancelled)},
			expected: []models.CourseAnalysis{
				{
					CourseID: "c1", CourseCode: "CSc1", CourseTitle: "Course c1",
					TotalRevaluations: 2, PublishedCount: 1,
					MarksIncreased: 1, FailToPass: 1,
					MaxMarksIncrease: 20, AvgMarkChange: 20,
					ImprovementRate: 100, PassRateImprovement: 100, PublicationRate: 50,
				},
				{
					CourseID: "c2", CourseCode: "CSc2", CourseTitle: "Course c2",
					TotalRevaluations: 1, PublishedCount: 1, MarksDecreased: 1,
					MaxMarksDecrease: -17, AvgMarkChange: 17, PublicationRate: 100,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)

			var selections []models.PublishingSelection
			for _, p := range tt.published {
				env.verified(t, p.id, p.courseID, p.external)
				selections = append(selections, env.selection(t, p.id, true))
			}
			if len(tt.seeded) > 0 {
				env.seed(t, tt.seeded...)
			}
			result, err := env.publishing.Publish(ctx, selections, "controller")
			require.NoError(t, err)
			require.Len(t, result.Succeeded, len(tt.published))

			report, err := env.reports.CourseAnalysis(ctx, models.Scope{InstitutionsID: testInstitution})
			require.NoError(t, err)
			assert.Equal(t, len(tt.expected), report.TotalCourses)
			assert.Equal(t, tt.expected, report.Courses)
		})
	}
}

func TestCourseAnalysis_RequiresInstitution(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reports.CourseAnalysis(context.Background(), models.Scope{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	report, err := env.reports.CourseAnalysis(context.Background(), models.Scope{InstitutionsID: "inst-empty"})
	require.NoError(t, err)
	assert.Zero(t, report.TotalCourses)
	assert.Empty(t, report.Courses)
}
