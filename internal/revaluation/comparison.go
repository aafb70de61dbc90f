package revaluation

import (
	"math"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Compare diffs the revaluation figures against the original ones. A zero
// marks difference never recommends switching.
func Compare(original, reval models.MarkSet) models.ComparisonRecord {
	diff := Round2(reval.Marks - original.Marks)
	rec := models.ComparisonRecord{
		MarksDifference:      diff,
		PercentageDifference: Round2(reval.Percentage - original.Percentage),
		GradeChanged:         reval.Grade != original.Grade,
		PassStatusChanged:    reval.IsPass != original.IsPass,
		IsImprovement:        diff > 0,
	}
	failToPass := !original.IsPass && reval.IsPass
	rec.RecommendedUseRevaluation = diff != 0 && (rec.IsImprovement || failToPass)
	return rec
}

// Summarize folds comparison items into aggregate counts.
func Summarize(items []models.ComparisonItem) models.ComparisonSummary {
	var s models.ComparisonSummary
	for _, it := range items {
		s.Total++
		c := it.Comparison
		switch {
		case c.MarksDifference > 0:
			s.Improvements++
		case c.MarksDifference < 0:
			s.Degradations++
		default:
			s.NoChange++
		}
		if c.GradeChanged {
			s.GradeChanges++
		}
		if c.PassStatusChanged {
			s.PassStatusChanges++
			if it.Revaluation.IsPass {
				s.FailToPass++
			} else {
				s.PassToFail++
			}
		}
		if c.RecommendedUseRevaluation {
			s.Recommended++
		}
	}
	return s
}
