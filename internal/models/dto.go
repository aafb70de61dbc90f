package models

import "time"

// Data Transfer Objects

type CreateApplicationRequest struct {
	InstitutionsID       string    `json:"institutions_id" validate:"required"`
	ExaminationSessionID string    `json:"examination_session_id" validate:"required"`
	RegisterNumber       string    `json:"register_number" validate:"required,max=50"`
	CourseIDs            []string  `json:"course_ids" validate:"required,min=1,max=5,unique,dive,required"`
	PaymentTransactionID string    `json:"payment_transaction_id" validate:"required,max=100"`
	PaymentDate          time.Time `json:"payment_date" validate:"required"`
	PaymentAmount        float64   `json:"payment_amount" validate:"required,gt=0"`
	ReasonForRevaluation *string   `json:"reason_for_revaluation,omitempty" validate:"omitempty,max=1000"`
}

type ApplicationResponse struct {
	Registrations []Registration `json:"registrations"`
	FeePerCourse  float64        `json:"fee_per_course"`
	TotalFee      float64        `json:"total_fee"`
}

type EligibilityResponse struct {
	ExamRegistration ExamRegistration       `json:"exam_registration"`
	Courses          []EligibleCourseResult `json:"courses"`
	FeePerCourse     float64                `json:"fee_per_course"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}

type AssignRequest struct {
	RegistrationIDs []string `json:"registration_ids" validate:"required,min=1,max=500,unique,dive,required"`
	ExaminerID      string   `json:"examiner_id" validate:"required"`
}

type SaveMarksRequest struct {
	MarksObtained     *float64           `json:"marks_obtained" validate:"required,gte=0"`
	MarksOutOf        float64            `json:"marks_out_of" validate:"required,gt=0"`
	QuestionWiseMarks map[string]float64 `json:"question_wise_marks,omitempty" validate:"omitempty,dive,gte=0"`
	EvaluatorRemarks  *string            `json:"evaluator_remarks,omitempty" validate:"omitempty,max=2000"`
}

// PublishingSelection is the human decision for one registration.
type PublishingSelection struct {
	RegistrationID      string `json:"revaluation_registration_id" validate:"required"`
	FinalMarksID        string `json:"revaluation_final_marks_id" validate:"required"`
	UseRevaluationMarks *bool  `json:"use_revaluation_marks" validate:"required"`
}

type PublishRequest struct {
	Selections []PublishingSelection `json:"selections" validate:"required,min=1,max=500,dive"`
}

// BatchItemError is one failed row of a batch operation.
type BatchItemError struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// BatchResult accumulates the outcome of a partial-success batch.
type BatchResult struct {
	Succeeded      []string         `json:"succeeded"`
	Failed         []BatchItemError `json:"failed"`
	SucceededCount int              `json:"succeeded_count"`
	FailedCount    int              `json:"failed_count"`
}

func NewBatchResult() *BatchResult {
	return &BatchResult{Succeeded: []string{}, Failed: []BatchItemError{}}
}

func (r *BatchResult) Ok(id string) {
	r.Succeeded = append(r.Succeeded, id)
	r.SucceededCount++
}

func (r *BatchResult) Fail(id, kind, reason string) {
	r.Failed = append(r.Failed, BatchItemError{ID: id, Kind: kind, Reason: reason})
	r.FailedCount++
}

type ReceiptResponse struct {
	RegistrationID string    `json:"revaluation_registration_id"`
	ObjectKey      string    `json:"object_key"`
	URL            string    `json:"url,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
}

type StatusDescriptor struct {
	Status   RegistrationStatus `json:"status"`
	Label    string             `json:"label"`
	Color    string             `json:"color"`
	Terminal bool               `json:"terminal"`
}
