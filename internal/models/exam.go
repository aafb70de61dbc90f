package models

// Types owned by the examination subsystem. This service only reads them,
// except for ResultWrite which it sends back on publish.

type ExamRegistration struct {
	ID                   string `json:"id"`
	ExaminationSessionID string `json:"examination_session_id"`
	RegisterNumber       string `json:"register_number"`
	StudentName          string `json:"student_name"`
	ProgramName          string `json:"program_name"`
	ProgramCode          string `json:"program_code"`
}

// CourseResult is one row of a student's original result.
type CourseResult struct {
	FinalMarksID          string   `json:"final_marks_id"`
	CourseID              string   `json:"course_id"`
	CourseCode            string   `json:"course_code"`
	CourseTitle           string   `json:"course_title"`
	CourseType            string   `json:"course_type"`
	InternalMarksObtained float64  `json:"internal_marks_obtained"`
	InternalMarksMaximum  float64  `json:"internal_marks_maximum"`
	TotalMarksObtained    *float64 `json:"total_marks_obtained"`
	TotalMarksMaximum     float64  `json:"total_marks_maximum"`
	Percentage            float64  `json:"percentage"`
	Grade                 string   `json:"grade"`
	IsPass                bool     `json:"is_pass"`
	ResultStatus          string   `json:"result_status"`
	IsLocked              bool     `json:"is_locked"`
	AttendanceStatus      string   `json:"attendance_status"`
	OriginalExaminerID    string   `json:"original_examiner_id,omitempty"`
}

const (
	ResultStatusPublished = "Published"
	AttendanceAbsent      = "Absent"
)

// Figures returns the original mark set of the row.
func (r CourseResult) Figures() MarkSet {
	var marks float64
	if r.TotalMarksObtained != nil {
		marks = *r.TotalMarksObtained
	}
	return MarkSet{Marks: marks, Percentage: r.Percentage, Grade: r.Grade, IsPass: r.IsPass}
}

type GradeBand struct {
	MinPercentage float64 `json:"min_percentage"`
	Grade         string  `json:"grade"`
}

// GradingScale is the rule set the examination subsystem grades with.
type GradingScale struct {
	PassPercentage float64     `json:"pass_percentage"`
	Bands          []GradeBand `json:"bands"`
}

// ResultWrite is the authoritative result update issued on publish.
type ResultWrite struct {
	FinalMarksID              string  `json:"final_marks_id"`
	ExamRegistrationID        string  `json:"exam_registration_id"`
	CourseID                  string  `json:"course_id"`
	RevaluationRegistrationID string  `json:"revaluation_registration_id"`
	Source                    string  `json:"source"`
	ExternalMarksObtained     float64 `json:"external_marks_obtained"`
	ExternalMarksMaximum      float64 `json:"external_marks_maximum"`
	TotalMarksObtained        float64 `json:"total_marks_obtained"`
	TotalMarksMaximum         float64 `json:"total_marks_maximum"`
	Percentage                float64 `json:"percentage"`
	Grade                     string  `json:"grade"`
	IsPass                    bool    `json:"is_pass"`
	UpdatedBy                 string  `json:"updated_by"`
}

const (
	ResultSourceRevaluation = "revaluation"
	ResultSourceOriginal    = "original"
)

type ExaminationSession struct {
	ID          string `json:"id"`
	SessionCode string `json:"session_code"`
	SessionName string `json:"session_name"`
}

type Examiner struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

type FeeConfig struct {
	InstitutionsID string  `json:"institutions_id"`
	FeePerCourse   float64 `json:"fee_per_course"`
}
