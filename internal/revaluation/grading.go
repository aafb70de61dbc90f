package revaluation

import (
	"errors"
	"sort"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

const DefaultPassPercentage = 40.0

var (
	ErrInvalidMaximum = errors.New("external marks maximum must be positive")
	// ErrScaleMismatch means the entry was not marked out of the course's
	// external maximum.
	ErrScaleMismatch = errors.New("marks entry is not out of the course external maximum")
)

// ExternalMaximum is the part of the course total not covered by internal
// assessment. Revaluation marks are always entered out of it.
func ExternalMaximum(r models.CourseResult) float64 {
	return Round2(r.TotalMarksMaximum - r.InternalMarksMaximum)
}

// Grade maps a percentage onto the scale's bands. The band with the highest
// minimum not above the percentage wins; "" when nothing matches.
func Grade(scale models.GradingScale, percentage float64) string {
	bands := make([]models.GradeBand, len(scale.Bands))
	copy(bands, scale.Bands)
	sort.Slice(bands, func(i, j int) bool {
		return bands[i].MinPercentage > bands[j].MinPercentage
	})
	for _, b := range bands {
		if percentage >= b.MinPercentage {
			return b.Grade
		}
	}
	return ""
}

func IsPass(scale models.GradingScale, percentage float64) bool {
	pass := scale.PassPercentage
	if pass <= 0 {
		pass = DefaultPassPercentage
	}
	return percentage >= pass
}

// ComputeFinalMarks combines the original internal marks with the
// revaluation external marks and grades the total with the same scale the
// original result was graded with. The maxima come from the original
// result, never from the entry. The original figures are snapshotted on the
// returned value.
func ComputeFinalMarks(original models.CourseResult, entry models.MarksEntry, scale models.GradingScale) (models.FinalMarks, error) {
	external := ExternalMaximum(original)
	if external <= 0 {
		return models.FinalMarks{}, ErrInvalidMaximum
	}
	if Round2(entry.MarksOutOf) != external {
		return models.FinalMarks{}, ErrScaleMismatch
	}
	total := original.InternalMarksObtained + entry.MarksObtained
	maximum := original.InternalMarksMaximum + external
	percentage := Round2(total / maximum * 100)

	orig := original.Figures()
	return models.FinalMarks{
		MarksEntryID:         entry.ID,
		RegistrationID:       entry.RegistrationID,
		OriginalFinalMarksID: original.FinalMarksID,
		InternalMarks:        original.InternalMarksObtained,
		InternalMaximum:      original.InternalMarksMaximum,
		ExternalMarks:        entry.MarksObtained,
		ExternalMaximum:      external,
		Marks:                Round2(total),
		MarksMaximum:         maximum,
		Percentage:           percentage,
		Grade:                Grade(scale, percentage),
		IsPass:               IsPass(scale, percentage),
		OriginalMarks:        orig.Marks,
		OriginalPercentage:   orig.Percentage,
		OriginalGrade:        orig.Grade,
		OriginalIsPass:       orig.IsPass,
	}, nil
}
