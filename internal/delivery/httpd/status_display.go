package httpd

import (
	"net/http"

	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
)

var statusDisplay = map[models.RegistrationStatus]struct {
	label string
	color string
}{
	models.StatusPaymentPending:  {"Awaiting payment verification", "amber"},
	models.StatusPaymentVerified: {"Payment verified", "blue"},
	models.StatusApproved:        {"Approved", "indigo"},
	models.StatusRejected:        {"Rejected", "red"},
	models.StatusAssigned:        {"Assigned to examiner", "purple"},
	models.StatusInProgress:      {"Evaluation in progress", "orange"},
	models.StatusEvaluated:       {"Evaluated", "teal"},
	models.StatusVerified:        {"Verified", "cyan"},
	models.StatusPublished:       {"Result published", "green"},
	models.StatusCancelled:       {"Cancelled", "gray"},
}

// DescribeStatus maps a status to how clients should display it. Unknown
// statuses get a neutral descriptor.
func DescribeStatus(s models.RegistrationStatus) models.StatusDescriptor {
	d, ok := statusDisplay[s]
	if !ok {
		return models.StatusDescriptor{Status: s, Label: string(s), Color: "gray"}
	}
	return models.StatusDescriptor{
		Status:   s,
		Label:    d.label,
		Color:    d.color,
		Terminal: revaluation.IsTerminal(s),
	}
}

func (h *Handler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	descriptors := make([]models.StatusDescriptor, 0, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		descriptors = append(descriptors, DescribeStatus(s))
	}
	writeSuccess(w, descriptors)
}
