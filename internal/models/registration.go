package models

import (
	"time"
)

// Registration is one revaluation request for a single
// (student, course, examination session) tuple.
type Registration struct {
	ID                    string  `json:"id" db:"id"`
	InstitutionsID        string  `json:"institutions_id" db:"institutions_id"`
	ExaminationSessionID  string  `json:"examination_session_id" db:"examination_session_id"`
	ExamRegistrationID    string  `json:"exam_registration_id" db:"exam_registration_id"`
	CourseID              string  `json:"course_id" db:"course_id"`
	OriginalFinalMarksID  string  `json:"original_final_marks_id" db:"original_final_marks_id"`
	StudentRegisterNumber string  `json:"student_register_number" db:"student_register_number"`
	StudentName           string  `json:"student_name" db:"student_name"`
	CourseCode            string  `json:"course_code" db:"course_code"`
	CourseTitle           string  `json:"course_title" db:"course_title"`
	AttemptNumber         int     `json:"attempt_number" db:"attempt_number"`
	PreviousRevaluationID *string `json:"previous_revaluation_id,omitempty" db:"previous_revaluation_id"`

	FeeAmount            float64       `json:"fee_amount" db:"fee_amount"`
	PaymentStatus        PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentTransactionID string        `json:"payment_transaction_id" db:"payment_transaction_id"`
	PaymentDate          time.Time     `json:"payment_date" db:"payment_date"`
	PaymentAmount        float64       `json:"payment_amount" db:"payment_amount"`
	PaymentVerifiedBy    *string       `json:"payment_verified_by,omitempty" db:"payment_verified_by"`
	PaymentVerifiedDate  *time.Time    `json:"payment_verified_date,omitempty" db:"payment_verified_date"`
	ReceiptObjectKey     *string       `json:"receipt_object_key,omitempty" db:"receipt_object_key"`

	Status               RegistrationStatus `json:"status" db:"status"`
	ReasonForRevaluation *string            `json:"reason_for_revaluation,omitempty" db:"reason_for_revaluation"`
	ExaminerID           *string            `json:"examiner_id,omitempty" db:"examiner_id"`
	ScriptCode           *string            `json:"script_code,omitempty" db:"script_code"`
	AssignedDate         *time.Time         `json:"assigned_date,omitempty" db:"assigned_date"`
	EvaluationDeadline   *time.Time         `json:"evaluation_deadline,omitempty" db:"evaluation_deadline"`

	ApprovedBy          *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedDate        *time.Time `json:"approved_date,omitempty" db:"approved_date"`
	RejectionReason     *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CancellationReason  *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	VerifiedBy          *string    `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedDate        *time.Time `json:"verified_date,omitempty" db:"verified_date"`
	PublishedBy         *string    `json:"published_by,omitempty" db:"published_by"`
	PublishedDate       *time.Time `json:"published_date,omitempty" db:"published_date"`
	UseRevaluationMarks *bool      `json:"use_revaluation_marks,omitempty" db:"use_revaluation_marks"`

	ApplicationDate time.Time `json:"application_date" db:"application_date"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// RegistrationPatch carries the columns set alongside a status change.
// Nil fields are left untouched.
type RegistrationPatch struct {
	PaymentStatus       *PaymentStatus
	PaymentVerifiedBy   *string
	PaymentVerifiedDate *time.Time
	ExaminerID          *string
	ScriptCode          *string
	AssignedDate        *time.Time
	EvaluationDeadline  *time.Time
	ApprovedBy          *string
	ApprovedDate        *time.Time
	RejectionReason     *string
	CancellationReason  *string
	VerifiedBy          *string
	VerifiedDate        *time.Time
	PublishedBy         *string
	PublishedDate       *time.Time
	UseRevaluationMarks *bool
}

// Transition is a compare-and-set status change: it only applies while the
// stored status is one of From.
type Transition struct {
	RegistrationID string
	From           []RegistrationStatus
	To             RegistrationStatus
	Patch          RegistrationPatch
	At             time.Time
}

// Apply copies the patch onto reg. Used by stores that mutate in place.
func (p RegistrationPatch) Apply(reg *Registration) {
	if p.PaymentStatus != nil {
		reg.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentVerifiedBy != nil {
		reg.PaymentVerifiedBy = p.PaymentVerifiedBy
	}
	if p.PaymentVerifiedDate != nil {
		reg.PaymentVerifiedDate = p.PaymentVerifiedDate
	}
	if p.ExaminerID != nil {
		reg.ExaminerID = p.ExaminerID
	}
	if p.ScriptCode != nil {
		reg.ScriptCode = p.ScriptCode
	}
	if p.AssignedDate != nil {
		reg.AssignedDate = p.AssignedDate
	}
	if p.EvaluationDeadline != nil {
		reg.EvaluationDeadline = p.EvaluationDeadline
	}
	if p.ApprovedBy != nil {
		reg.ApprovedBy = p.ApprovedBy
	}
	if p.ApprovedDate != nil {
		reg.ApprovedDate = p.ApprovedDate
	}
	if p.RejectionReason != nil {
		reg.RejectionReason = p.RejectionReason
	}
	if p.CancellationReason != nil {
		reg.CancellationReason = p.CancellationReason
	}
	if p.VerifiedBy != nil {
		reg.VerifiedBy = p.VerifiedBy
	}
	if p.VerifiedDate != nil {
		reg.VerifiedDate = p.VerifiedDate
	}
	if p.PublishedBy != nil {
		reg.PublishedBy = p.PublishedBy
	}
	if p.PublishedDate != nil {
		reg.PublishedDate = p.PublishedDate
	}
	if p.UseRevaluationMarks != nil {
		reg.UseRevaluationMarks = p.UseRevaluationMarks
	}
}

// RegistrationFilter narrows List results. Empty fields do not filter.
type RegistrationFilter struct {
	InstitutionsID       string
	ExaminationSessionID string
	ExamRegistrationID   string
	CourseID             string
	ExaminerID           string
	Statuses             []RegistrationStatus
	PaymentStatus        PaymentStatus
	Search               string
	Limit                int
	Offset               int
}

type RegistrationsResponse struct {
	Registrations []Registration `json:"registrations"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
}
