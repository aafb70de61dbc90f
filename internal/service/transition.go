package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
	"github.com/RubachokBoss/revaluation-service/internal/service/integration"
)

// Settings are the tunable workflow parameters.
type Settings struct {
	FeeTolerance             float64
	EvaluationDeadlineOffset time.Duration
	ScriptCodePrefix         string
	DefaultPageLimit         int
	MaxPageLimit             int
	ReceiptURLExpiry         time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		FeeTolerance:             0.01,
		EvaluationDeadlineOffset: 30 * 24 * time.Hour,
		ScriptCodePrefix:         "RV",
		DefaultPageLimit:         20,
		MaxPageLimit:             100,
		ReceiptURLExpiry:         15 * time.Minute,
	}
}

// workflow is shared by the services that move registrations between
// statuses. Every change goes through the repository compare-and-set.
type workflow struct {
	regs    repository.RegistrationRepository
	events  integration.EventPublisher
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func (w *workflow) now() time.Time {
	return time.Now().UTC()
}

func (w *workflow) load(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := w.regs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	if reg == nil {
		return nil, apperr.NotFound("registration", id)
	}
	return reg, nil
}

// move checks the state machine and applies a single-step transition from
// the status observed in reg.
func (w *workflow) move(ctx context.Context, reg *models.Registration, to models.RegistrationStatus, patch models.RegistrationPatch, actor string) (*models.Registration, error) {
	if err := revaluation.CheckTransition(reg.ID, reg.Status, to); err != nil {
		return nil, err
	}

	updated, err := w.regs.Transition(ctx, models.Transition{
		RegistrationID: reg.ID,
		From:           []models.RegistrationStatus{reg.Status},
		To:             to,
		Patch:          patch,
		At:             w.now(),
	})
	if err != nil {
		return nil, w.writeError(ctx, reg.ID, err)
	}

	w.committed(ctx, reg.Status, updated, actor)
	return updated, nil
}

// writeError turns a repository failure into the caller-facing error. A
// failed precondition is re-read so the caller learns the current status.
func (w *workflow) writeError(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		current, getErr := w.regs.GetByID(ctx, id)
		if getErr != nil {
			return fmt.Errorf("failed to reload registration: %w", getErr)
		}
		if current == nil {
			return apperr.NotFound("registration", id)
		}
		switch current.Status {
		case models.StatusCancelled:
			return apperr.Conflict(id, "registration is cancelled")
		case models.StatusPublished:
			return apperr.Conflict(id, "registration is already published")
		}
		return apperr.Conflict(id, fmt.Sprintf("registration was modified concurrently, current status is %s", current.Status))
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict(id, "registration conflicts with an existing record")
	case errors.Is(err, repository.ErrEntryLocked):
		return apperr.Conflict(id, "marks have already been finalized")
	case errors.Is(err, repository.ErrDraftChanged):
		return apperr.Conflict(id, "marks were changed while finalizing, finalize again")
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return fmt.Errorf("failed to update registration %s: %w", id, err)
}

// committed records a transition that is already durable. Event delivery
// failures are logged only.
func (w *workflow) committed(ctx context.Context, from models.RegistrationStatus, reg *models.Registration, actor string) {
	w.metrics.Transition(from.String(), reg.Status.String())
	w.logger.Info().
		Str("registration_id", reg.ID).
		Str("from", from.String()).
		Str("to", reg.Status.String()).
		Str("actor", actor).
		Msg("Registration status changed")

	event := &models.StatusChangedEvent{
		RegistrationID: reg.ID,
		From:           from.String(),
		To:             reg.Status.String(),
		Actor:          actor,
		Timestamp:      reg.UpdatedAt.Unix(),
	}
	if err := w.events.PublishStatusChanged(ctx, event); err != nil {
		w.logger.Error().Err(err).
			Str("registration_id", reg.ID).
			Msg("Failed to publish status change event")
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apperr.Validation("caller identity is required", apperr.FieldError{Field: "X-User-ID", Message: "is required"})
	}
	return nil
}

func requireReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.Validation("reason is required", apperr.FieldError{Field: "reason", Message: "is required"})
	}
	return nil
}

func normalizePage(page, limit int, s Settings) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.DefaultPageLimit
	}
	if limit > s.MaxPageLimit {
		limit = s.MaxPageLimit
	}
	return page, limit
}

func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func boolPtr(b bool) *bool {
	return &b
}
