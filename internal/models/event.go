package models

const (
	EventStatusChanged = "revaluation.status_changed"
	EventPublished     = "revaluation.published"
)

type StatusChangedEvent struct {
	RegistrationID string `json:"revaluation_registration_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Actor          string `json:"actor,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type PublishedEvent struct {
	RegistrationID      string  `json:"revaluation_registration_id"`
	ExamRegistrationID  string  `json:"exam_registration_id"`
	CourseID            string  `json:"course_id"`
	UseRevaluationMarks bool    `json:"use_revaluation_marks"`
	Marks               float64 `json:"marks"`
	Grade               string  `json:"grade"`
	IsPass              bool    `json:"is_pass"`
	PublishedBy         string  `json:"published_by"`
	Timestamp           int64   `json:"timestamp"`
}
