package models

import "time"

// EligibleCourseResult is the eligibility verdict for one course result.
type EligibleCourseResult struct {
	CourseResult
	ExistingAttempts     int    `json:"existing_attempts"`
	HasActiveRevaluation bool   `json:"has_active_revaluation"`
	IsEligible           bool   `json:"is_eligible"`
	IneligibleReason     string `json:"ineligible_reason,omitempty"`
	NextAttemptNumber    int    `json:"next_attempt_number"`
}

// BlindScript is everything an examiner may see about a script under
// re-evaluation. Original marks, earlier attempts and student identity are
// deliberately absent.
type BlindScript struct {
	ScriptCode         string             `json:"script_code"`
	CourseCode         string             `json:"course_code"`
	CourseTitle        string             `json:"course_title"`
	AttemptNumber      int                `json:"attempt_number"`
	Status             RegistrationStatus `json:"status"`
	EvaluationDeadline *time.Time         `json:"evaluation_deadline,omitempty"`
	Entry              *BlindEntry        `json:"entry,omitempty"`
}

// BlindEntry is the examiner's own current entry for the script.
type BlindEntry struct {
	MarksObtained     float64            `json:"marks_obtained"`
	MarksOutOf        float64            `json:"marks_out_of"`
	QuestionWiseMarks map[string]float64 `json:"question_wise_marks,omitempty"`
	EvaluatorRemarks  *string            `json:"evaluator_remarks,omitempty"`
	EntryStatus       MarksEntryStatus   `json:"entry_status"`
}

// ComparisonRecord is derived on demand and never stored.
type ComparisonRecord struct {
	MarksDifference           float64 `json:"marks_difference"`
	PercentageDifference      float64 `json:"percentage_difference"`
	GradeChanged              bool    `json:"grade_changed"`
	PassStatusChanged         bool    `json:"pass_status_changed"`
	IsImprovement             bool    `json:"is_improvement"`
	RecommendedUseRevaluation bool    `json:"recommended_use_revaluation"`
}

type ComparisonItem struct {
	RegistrationID        string             `json:"revaluation_registration_id"`
	FinalMarksID          string             `json:"revaluation_final_marks_id"`
	StudentRegisterNumber string             `json:"student_register_number"`
	StudentName           string             `json:"student_name"`
	CourseCode            string             `json:"course_code"`
	CourseTitle           string             `json:"course_title"`
	AttemptNumber         int                `json:"attempt_number"`
	Status                RegistrationStatus `json:"status"`
	Original              MarkSet            `json:"original"`
	Revaluation           MarkSet            `json:"revaluation"`
	Comparison            ComparisonRecord   `json:"comparison"`
}

type ComparisonSummary struct {
	Total             int `json:"total"`
	Improvements      int `json:"improvements"`
	Degradations      int `json:"degradations"`
	NoChange          int `json:"no_change"`
	GradeChanges      int `json:"grade_changes"`
	PassStatusChanges int `json:"pass_status_changes"`
	FailToPass        int `json:"fail_to_pass"`
	PassToFail        int `json:"pass_to_fail"`
	Recommended       int `json:"recommended_use_revaluation"`
}

type ComparisonReport struct {
	Summary ComparisonSummary `json:"summary"`
	Items   []ComparisonItem  `json:"data"`
	Errors  []BatchItemError  `json:"errors,omitempty"`
}

// Scope selects registrations of one institution and, optionally, one
// examination session.
type Scope struct {
	InstitutionsID       string
	ExaminationSessionID string
}

type PublishedAnalysis struct {
	Total           int     `json:"total"`
	MarksIncreased  int     `json:"marks_increased"`
	MarksDecreased  int     `json:"marks_decreased"`
	MarksUnchanged  int     `json:"marks_unchanged"`
	ImprovementRate float64 `json:"improvement_rate"`
	FailToPass      int     `json:"fail_to_pass"`
	PassToFail      int     `json:"pass_to_fail"`
	AvgMarkChange   float64 `json:"avg_mark_change"`
	RevaluationUsed int     `json:"revaluation_marks_used"`
}

type Statistics struct {
	TotalApplications      int               `json:"total_applications"`
	StatusBreakdown        map[string]int    `json:"status_breakdown"`
	PaymentStatusBreakdown map[string]int    `json:"payment_status_breakdown"`
	AttemptDistribution    map[int]int       `json:"attempt_distribution"`
	FeeCollected           float64           `json:"fee_collected"`
	Published              PublishedAnalysis `json:"published_results"`
	AvgTurnaroundDays      float64           `json:"avg_turnaround_days"`
}

// CourseAnalysis aggregates the revaluations of one course. Mark movement
// counts cover published registrations only.
type CourseAnalysis struct {
	CourseID            string  `json:"course_id"`
	CourseCode          string  `json:"course_code"`
	CourseTitle         string  `json:"course_title"`
	TotalRevaluations   int     `json:"total_revaluations"`
	PublishedCount      int     `json:"published_count"`
	MarksIncreased      int     `json:"marks_increased"`
	MarksDecreased      int     `json:"marks_decreased"`
	MarksUnchanged      int     `json:"marks_unchanged"`
	FailToPass          int     `json:"fail_to_pass"`
	PassToFail          int     `json:"pass_to_fail"`
	MaxMarksIncrease    float64 `json:"max_marks_increase"`
	MaxMarksDecrease    float64 `json:"max_marks_decrease"`
	AvgMarkChange       float64 `json:"avg_mark_change"`
	ImprovementRate     float64 `json:"improvement_rate"`
	PassRateImprovement float64 `json:"pass_rate_improvement"`
	PublicationRate     float64 `json:"publication_rate"`
}

type CourseAnalysisReport struct {
	TotalCourses int              `json:"total_courses"`
	Courses      []CourseAnalysis `json:"courses"`
}
