package revaluation

import (
	"strings"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

const (
	MaxCoursesPerApplication = 5
	MaxAttempts              = 3
)

const (
	ReasonNotPublished     = "Result not published"
	ReasonLocked           = "Results locked - revaluation period closed"
	ReasonPractical        = "Practical/Lab courses not eligible for revaluation"
	ReasonAbsent           = "Absent in examination"
	ReasonMaxAttempts      = "Maximum 3 attempts reached"
	ReasonActiveInProgress = "Active revaluation in progress"
)

var practicalCourseTypes = []string{"practical", "lab", "laboratory", "workshop"}

// IsPracticalCourse matches the course type against the practical exclusion
// set, ignoring case.
func IsPracticalCourse(courseType string) bool {
	t := strings.ToLower(courseType)
	for _, p := range practicalCourseTypes {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

type attemptHistory struct {
	count      int
	maxAttempt int
	active     bool
}

// Evaluate decides, for every result row, whether a new revaluation may be
// requested. prior holds every registration already filed under the same
// exam registration. The output keeps the input order and Evaluate never
// modifies its arguments.
func Evaluate(results []models.CourseResult, prior []models.Registration) []models.EligibleCourseResult {
	history := make(map[string]attemptHistory, len(prior))
	for _, reg := range prior {
		h := history[reg.CourseID]
		h.count++
		if reg.AttemptNumber > h.maxAttempt {
			h.maxAttempt = reg.AttemptNumber
		}
		if IsActive(reg.Status) {
			h.active = true
		}
		history[reg.CourseID] = h
	}

	out := make([]models.EligibleCourseResult, 0, len(results))
	for _, r := range results {
		h := history[r.CourseID]
		next := h.maxAttempt
		if h.count > next {
			next = h.count
		}

		row := models.EligibleCourseResult{
			CourseResult:         r,
			ExistingAttempts:     h.count,
			HasActiveRevaluation: h.active,
			NextAttemptNumber:    next + 1,
		}
		row.IneligibleReason = ineligibleReason(r, h)
		row.IsEligible = row.IneligibleReason == ""
		out = append(out, row)
	}
	return out
}

// ineligibleReason returns the first failing condition in precedence order,
// or "" when the row is eligible.
func ineligibleReason(r models.CourseResult, h attemptHistory) string {
	switch {
	case r.ResultStatus != models.ResultStatusPublished:
		return ReasonNotPublished
	case r.IsLocked:
		return ReasonLocked
	case IsPracticalCourse(r.CourseType):
		return ReasonPractical
	case strings.EqualFold(r.AttendanceStatus, models.AttendanceAbsent) || r.TotalMarksObtained == nil:
		return ReasonAbsent
	case h.count >= MaxAttempts:
		return ReasonMaxAttempts
	case h.active:
		return ReasonActiveInProgress
	}
	return ""
}

// Eligible filters Evaluate output down to the eligible rows.
func Eligible(rows []models.EligibleCourseResult) []models.EligibleCourseResult {
	out := make([]models.EligibleCourseResult, 0, len(rows))
	for _, row := range rows {
		if row.IsEligible {
			out = append(out, row)
		}
	}
	return out
}

// LatestAttempt returns the registration with the highest attempt number for
// courseID, or nil.
func LatestAttempt(prior []models.Registration, courseID string) *models.Registration {
	var latest *models.Registration
	for i := range prior {
		if prior[i].CourseID != courseID {
			continue
		}
		if latest == nil || prior[i].AttemptNumber > latest.AttemptNumber {
			latest = &prior[i]
		}
	}
	return latest
}
