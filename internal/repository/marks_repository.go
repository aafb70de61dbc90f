package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

type MarksRepository interface {
	GetByRegistrationID(ctx context.Context, registrationID string) (*models.MarksEntry, error)
	// SaveDraft upserts a Draft entry. When start is set the registration
	// transition is applied in the same transaction and the updated
	// registration is returned.
	SaveDraft(ctx context.Context, entry *models.MarksEntry, start *models.Transition) (*models.Registration, error)
}

type marksRepository struct {
	*PostgresRepository
}

func NewMarksRepository(db *sql.DB, logger zerolog.Logger) MarksRepository {
	return &marksRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *marksRepository) GetByRegistrationID(ctx context.Context, registrationID string) (*models.MarksEntry, error) {
	query := `
		SELECT
			id, revaluation_registration_id, examiner_id, marks_obtained, marks_out_of,
			question_wise_marks, evaluator_remarks, entry_status, submitted_at, created_at, updated_at
		FROM revaluation_marks
		WHERE revaluation_registration_id = $1
	`

	entry := &models.MarksEntry{}
	var questionWise []byte
	err := r.db.QueryRowContext(ctx, query, registrationID).Scan(
		&entry.ID,
		&entry.RegistrationID,
		&entry.ExaminerID,
		&entry.MarksObtained,
		&entry.MarksOutOf,
		&questionWise,
		&entry.EvaluatorRemarks,
		&entry.EntryStatus,
		&entry.SubmittedAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(questionWise) > 0 {
		if err := json.Unmarshal(questionWise, &entry.QuestionWiseMarks); err != nil {
			return nil, fmt.Errorf("failed to decode question wise marks: %w", err)
		}
	}
	return entry, nil
}

func (r *marksRepository) SaveDraft(ctx context.Context, entry *models.MarksEntry, start *models.Transition) (*models.Registration, error) {
	var questionWise []byte
	if len(entry.QuestionWiseMarks) > 0 {
		var err error
		questionWise, err = json.Marshal(entry.QuestionWiseMarks)
		if err != nil {
			return nil, fmt.Errorf("failed to encode question wise marks: %w", err)
		}
	}

	query := `
		INSERT INTO revaluation_marks (
			id, revaluation_registration_id, examiner_id, marks_obtained, marks_out_of,
			question_wise_marks, evaluator_remarks, entry_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'Draft', $8, $8)
		ON CONFLICT (revaluation_registration_id) DO UPDATE SET
			marks_obtained = EXCLUDED.marks_obtained,
			marks_out_of = EXCLUDED.marks_out_of,
			question_wise_marks = EXCLUDED.question_wise_marks,
			evaluator_remarks = EXCLUDED.evaluator_remarks,
			updated_at = EXCLUDED.updated_at
		WHERE revaluation_marks.entry_status = 'Draft'
			AND revaluation_marks.examiner_id = EXCLUDED.examiner_id
		RETURNING id, created_at
	`

	var updated *models.Registration
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if start != nil {
			reg, err := transitionRegistration(ctx, tx, *start)
			if err != nil {
				return err
			}
			updated = reg
		}

		err := tx.QueryRowContext(ctx, query,
			entry.ID,
			entry.RegistrationID,
			entry.ExaminerID,
			entry.MarksObtained,
			entry.MarksOutOf,
			questionWise,
			entry.EvaluatorRemarks,
			entry.UpdatedAt,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err == sql.ErrNoRows {
			return ErrEntryLocked
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	entry.EntryStatus = models.EntryDraft
	return updated, nil
}
