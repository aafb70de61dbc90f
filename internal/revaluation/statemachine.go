package revaluation

import (
	"fmt"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

var transitions = map[models.RegistrationStatus][]models.RegistrationStatus{
	models.StatusPaymentPending:  {models.StatusPaymentVerified, models.StatusCancelled},
	models.StatusPaymentVerified: {models.StatusApproved, models.StatusRejected, models.StatusCancelled},
	models.StatusApproved:        {models.StatusAssigned, models.StatusCancelled},
	models.StatusAssigned:        {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress:      {models.StatusEvaluated, models.StatusCancelled},
	models.StatusEvaluated:       {models.StatusVerified},
	models.StatusVerified:        {models.StatusPublished},
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s models.RegistrationStatus) []models.RegistrationStatus {
	next := transitions[s]
	out := make([]models.RegistrationStatus, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to models.RegistrationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.RegistrationStatus) bool {
	return len(transitions[s]) == 0
}

// IsActive reports whether a registration in status s still blocks a new
// application for the same exam registration and course.
func IsActive(s models.RegistrationStatus) bool {
	return s != models.StatusPublished && s != models.StatusCancelled
}

// CheckTransition returns a conflict error when the move from -> to is not
// allowed for the registration id.
func CheckTransition(id string, from, to models.RegistrationStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	switch from {
	case models.StatusCancelled:
		return apperr.Conflict(id, "registration is cancelled")
	case models.StatusPublished:
		return apperr.Conflict(id, "registration is already published")
	case models.StatusRejected:
		return apperr.Conflict(id, "registration is rejected")
	}
	return apperr.Conflict(id, fmt.Sprintf("cannot move registration from %s to %s", from, to))
}
