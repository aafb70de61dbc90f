package models

type RegistrationStatus string

const (
	StatusPaymentPending  RegistrationStatus = "Payment Pending"
	StatusPaymentVerified RegistrationStatus = "Payment Verified"
	StatusApproved        RegistrationStatus = "Approved"
	StatusRejected        RegistrationStatus = "Rejected"
	StatusAssigned        RegistrationStatus = "Assigned"
	StatusInProgress      RegistrationStatus = "In Progress"
	StatusEvaluated       RegistrationStatus = "Evaluated"
	StatusVerified        RegistrationStatus = "Verified"
	StatusPublished       RegistrationStatus = "Published"
	StatusCancelled       RegistrationStatus = "Cancelled"
)

// AllStatuses lists the workflow states in lifecycle order.
var AllStatuses = []RegistrationStatus{
	StatusPaymentPending,
	StatusPaymentVerified,
	StatusApproved,
	StatusRejected,
	StatusAssigned,
	StatusInProgress,
	StatusEvaluated,
	StatusVerified,
	StatusPublished,
	StatusCancelled,
}

func (s RegistrationStatus) String() string {
	return string(s)
}

func IsValidRegistrationStatus(status string) bool {
	for _, s := range AllStatuses {
		if string(s) == status {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentVerified PaymentStatus = "Verified"
	PaymentRejected PaymentStatus = "Rejected"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

func IsValidPaymentStatus(status string) bool {
	switch PaymentStatus(status) {
	case PaymentPending, PaymentVerified, PaymentRejected:
		return true
	default:
		return false
	}
}

type MarksEntryStatus string

const (
	EntryDraft     MarksEntryStatus = "Draft"
	EntrySubmitted MarksEntryStatus = "Submitted"
)
