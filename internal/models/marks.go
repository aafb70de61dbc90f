package models

import "time"

// MarksEntry is the examiner's working copy of revaluation marks. It stays
// editable while Draft and is frozen once the examiner finalizes.
type MarksEntry struct {
	ID                string             `json:"id" db:"id"`
	RegistrationID    string             `json:"revaluation_registration_id" db:"revaluation_registration_id"`
	ExaminerID        string             `json:"examiner_id" db:"examiner_id"`
	MarksObtained     float64            `json:"marks_obtained" db:"marks_obtained"`
	MarksOutOf        float64            `json:"marks_out_of" db:"marks_out_of"`
	QuestionWiseMarks map[string]float64 `json:"question_wise_marks,omitempty" db:"question_wise_marks"`
	EvaluatorRemarks  *string            `json:"evaluator_remarks,omitempty" db:"evaluator_remarks"`
	EntryStatus       MarksEntryStatus   `json:"entry_status" db:"entry_status"`
	SubmittedAt       *time.Time         `json:"submitted_at,omitempty" db:"submitted_at"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// FinalMarks is the re-correction result for one registration. Created when
// the registration reaches Evaluated and never mutated afterwards.
type FinalMarks struct {
	ID                   string    `json:"id" db:"id"`
	RegistrationID       string    `json:"revaluation_registration_id" db:"revaluation_registration_id"`
	MarksEntryID         string    `json:"revaluation_marks_id" db:"revaluation_marks_id"`
	OriginalFinalMarksID string    `json:"original_final_marks_id" db:"original_final_marks_id"`
	InternalMarks        float64   `json:"internal_marks_obtained" db:"internal_marks_obtained"`
	InternalMaximum      float64   `json:"internal_marks_maximum" db:"internal_marks_maximum"`
	ExternalMarks        float64   `json:"external_marks_obtained" db:"external_marks_obtained"`
	ExternalMaximum      float64   `json:"external_marks_maximum" db:"external_marks_maximum"`
	Marks                float64   `json:"marks" db:"total_marks_obtained"`
	MarksMaximum         float64   `json:"marks_maximum" db:"total_marks_maximum"`
	Percentage           float64   `json:"percentage" db:"percentage"`
	Grade                string    `json:"grade" db:"letter_grade"`
	IsPass               bool      `json:"is_pass" db:"is_pass"`
	OriginalMarks        float64   `json:"original_marks" db:"original_marks_obtained"`
	OriginalPercentage   float64   `json:"original_percentage" db:"original_percentage"`
	OriginalGrade        string    `json:"original_grade" db:"original_grade"`
	OriginalIsPass       bool      `json:"original_is_pass" db:"original_is_pass"`
	CalculatedBy         string    `json:"calculated_by" db:"calculated_by"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// Figures returns the revaluation mark set.
func (fm FinalMarks) Figures() MarkSet {
	return MarkSet{Marks: fm.Marks, Percentage: fm.Percentage, Grade: fm.Grade, IsPass: fm.IsPass}
}

// OriginalFigures returns the snapshot of the original result taken when
// the final marks were computed.
func (fm FinalMarks) OriginalFigures() MarkSet {
	return MarkSet{Marks: fm.OriginalMarks, Percentage: fm.OriginalPercentage, Grade: fm.OriginalGrade, IsPass: fm.OriginalIsPass}
}

type MarkSet struct {
	Marks      float64 `json:"marks"`
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
	IsPass     bool    `json:"is_pass"`
}
