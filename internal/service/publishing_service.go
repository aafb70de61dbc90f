package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
	"github.com/RubachokBoss/revaluation-service/internal/service/integration"
)

type PublishingService interface {
	Publish(ctx context.Context, selections []models.PublishingSelection, publishedBy string) (*models.BatchResult, error)
}

type publishingService struct {
	*workflow
	finals repository.FinalMarksRepository
	exams  integration.ExamClient
}

func NewPublishingService(
	regs repository.RegistrationRepository,
	finals repository.FinalMarksRepository,
	exams integration.ExamClient,
	events integration.EventPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) PublishingService {
	return &publishingService{
		workflow: &workflow{regs: regs, events: events, metrics: m, logger: logger},
		finals:   finals,
		exams:    exams,
	}
}

// Publish applies each selection independently. The result write-back and
// the Verified -> Published transition happen under the registration lock,
// so a registration is written back at most once.
func (s *publishingService) Publish(ctx context.Context, selections []models.PublishingSelection, publishedBy string) (*models.BatchResult, error) {
	if err := requireActor(publishedBy); err != nil {
		return nil, err
	}
	if len(selections) == 0 {
		return nil, apperr.Validation("no selections given", apperr.FieldError{Field: "selections", Message: "at least one selection is required"})
	}

	result := models.NewBatchResult()
	seen := make(map[string]bool, len(selections))
	for _, sel := range selections {
		id := sel.RegistrationID
		var err error
		if seen[id] {
			err = apperr.Invalid(id, "registration listed more than once")
		} else {
			seen[id] = true
			err = s.publishOne(ctx, sel, publishedBy)
		}

		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				s.logger.Error().Err(err).Str("registration_id", id).Msg("Publishing failed")
			}
			result.Fail(id, string(apperr.KindOf(err)), apperr.Reason(err))
			s.metrics.BatchRow("publish", false)
			continue
		}
		result.Ok(id)
		s.metrics.BatchRow("publish", true)
	}

	s.logger.Info().
		Str("published_by", publishedBy).
		Int("published", result.SucceededCount).
		Int("failed", result.FailedCount).
		Msg("Publishing batch processed")

	return result, nil
}

func (s *publishingService) publishOne(ctx context.Context, sel models.PublishingSelection, publishedBy string) error {
	if strings.TrimSpace(sel.RegistrationID) == "" {
		return apperr.Validation("registration id is required", apperr.FieldError{Field: "revaluation_registration_id", Message: "is required"})
	}
	if sel.UseRevaluationMarks == nil {
		return apperr.Invalid(sel.RegistrationID, "use_revaluation_marks must be chosen explicitly")
	}

	reg, err := s.load(ctx, sel.RegistrationID)
	if err != nil {
		return err
	}
	switch reg.Status {
	case models.StatusVerified:
	case models.StatusPublished, models.StatusCancelled, models.StatusRejected:
		return checkOpen(reg)
	default:
		return apperr.Conflict(reg.ID, fmt.Sprintf("not eligible for publishing, current status is %s", reg.Status))
	}

	fm, err := s.finals.GetByRegistrationID(ctx, reg.ID)
	if err != nil {
		return fmt.Errorf("failed to get final marks: %w", err)
	}
	if fm == nil {
		return apperr.NotFound("final marks", reg.ID)
	}
	if sel.FinalMarksID != "" && sel.FinalMarksID != fm.ID {
		return apperr.Invalid(reg.ID, "final marks id does not belong to this registration")
	}

	useReval := *sel.UseRevaluationMarks
	write := resultWrite(reg, fm, useReval, publishedBy)
	now := s.now()

	updated, err := s.regs.Publish(ctx, models.Transition{
		RegistrationID: reg.ID,
		From:           []models.RegistrationStatus{models.StatusVerified},
		To:             models.StatusPublished,
		Patch: models.RegistrationPatch{
			PublishedBy:         stringPtr(publishedBy),
			PublishedDate:       timePtr(now),
			UseRevaluationMarks: boolPtr(useReval),
		},
		At: now,
	}, func(ctx context.Context, _ *models.Registration) error {
		return s.exams.WriteResult(ctx, write)
	})
	if err != nil {
		return s.writeError(ctx, reg.ID, err)
	}

	s.committed(ctx, models.StatusVerified, updated, publishedBy)

	event := &models.PublishedEvent{
		RegistrationID:      updated.ID,
		ExamRegistrationID:  updated.ExamRegistrationID,
		CourseID:            updated.CourseID,
		UseRevaluationMarks: useReval,
		Marks:               write.TotalMarksObtained,
		Grade:               write.Grade,
		IsPass:              write.IsPass,
		PublishedBy:         publishedBy,
		Timestamp:           now.Unix(),
	}
	if err := s.events.PublishPublished(ctx, event); err != nil {
		s.logger.Error().Err(err).
			Str("registration_id", updated.ID).
			Msg("Failed to publish result event")
	}
	return nil
}

// resultWrite builds the authoritative result update for the chosen mark
// set. Keeping the original still writes back so the result record carries
// the revaluation reference.
func resultWrite(reg *models.Registration, fm *models.FinalMarks, useReval bool, publishedBy string) models.ResultWrite {
	write := models.ResultWrite{
		FinalMarksID:              reg.OriginalFinalMarksID,
		ExamRegistrationID:        reg.ExamRegistrationID,
		CourseID:                  reg.CourseID,
		RevaluationRegistrationID: reg.ID,
		ExternalMarksMaximum:      fm.ExternalMaximum,
		TotalMarksMaximum:         fm.MarksMaximum,
		UpdatedBy:                 publishedBy,
	}
	if useReval {
		write.Source = models.ResultSourceRevaluation
		write.ExternalMarksObtained = fm.ExternalMarks
		write.TotalMarksObtained = fm.Marks
		write.Percentage = fm.Percentage
		write.Grade = fm.Grade
		write.IsPass = fm.IsPass
		return write
	}

	write.Source = models.ResultSourceOriginal
	write.ExternalMarksObtained = revaluation.Round2(fm.OriginalMarks - fm.InternalMarks)
	write.TotalMarksObtained = fm.OriginalMarks
	write.Percentage = fm.OriginalPercentage
	write.Grade = fm.OriginalGrade
	write.IsPass = fm.OriginalIsPass
	return write
}
