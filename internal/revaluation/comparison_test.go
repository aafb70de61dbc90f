package revaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		original models.MarkSet
		reval    models.MarkSet
		want     models.ComparisonRecord
	}{
		{
			name:     "grade improves",
			original: models.MarkSet{Marks: 40, Grade: "B", IsPass: true},
			reval:    models.MarkSet{Marks: 45, Grade: "B+", IsPass: true},
			want: models.ComparisonRecord{
				MarksDifference:           5,
				GradeChanged:              true,
				IsImprovement:             true,
				RecommendedUseRevaluation: true,
			},
		},
		{
			name:     "still failing but higher",
			original: models.MarkSet{Marks: 38, Grade: "F", IsPass: false},
			reval:    models.MarkSet{Marks: 39, Grade: "F", IsPass: false},
			want: models.ComparisonRecord{
				MarksDifference:           1,
				IsImprovement:             true,
				RecommendedUseRevaluation: true,
			},
		},
		{
			name:     "identical",
			original: models.MarkSet{Marks: 40, Grade: "B", IsPass: true},
			reval:    models.MarkSet{Marks: 40, Grade: "B", IsPass: true},
			want:     models.ComparisonRecord{},
		},
		{
			name:     "zero difference with flipped flags",
			original: models.MarkSet{Marks: 40, Grade: "E", IsPass: false},
			reval:    models.MarkSet{Marks: 40, Grade: "D", IsPass: true},
			want: models.ComparisonRecord{
				GradeChanged:      true,
				PassStatusChanged: true,
			},
		},
		{
			name:     "decrease",
			original: models.MarkSet{Marks: 52.5, Percentage: 52.5, Grade: "C", IsPass: true},
			reval:    models.MarkSet{Marks: 37.25, Percentage: 37.25, Grade: "F", IsPass: false},
			want: models.ComparisonRecord{
				MarksDifference:      -15.25,
				PercentageDifference: -15.25,
				GradeChanged:         true,
				PassStatusChanged:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.original, tt.reval))
		})
	}
}

func TestCompare_FloatNoise(t *testing.T) {
	rec := Compare(models.MarkSet{Marks: 0.1 + 0.2}, models.MarkSet{Marks: 0.3})

	assert.Equal(t, 0.0, rec.MarksDifference)
	assert.False(t, rec.RecommendedUseRevaluation)
}

func TestSummarize(t *testing.T) {
	items := []models.ComparisonItem{
		{Revaluation: models.MarkSet{IsPass: true}, Comparison: Compare(models.MarkSet{Marks: 35}, models.MarkSet{Marks: 45, IsPass: true})},
		{Revaluation: models.MarkSet{IsPass: false}, Comparison: Compare(models.MarkSet{Marks: 45, IsPass: true}, models.MarkSet{Marks: 30})},
		{Comparison: Compare(models.MarkSet{Marks: 50}, models.MarkSet{Marks: 50})},
	}

	s := Summarize(items)
	require.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Improvements)
	assert.Equal(t, 1, s.Degradations)
	assert.Equal(t, 1, s.NoChange)
	assert.Equal(t, 2, s.PassStatusChanges)
	assert.Equal(t, 1, s.FailToPass)
	assert.Equal(t, 1, s.PassToFail)
	assert.Equal(t, 1, s.Recommended)
}
