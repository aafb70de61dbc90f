package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

type FinalMarksRepository interface {
	// CreateOnEvaluated stores the final marks, freezes the marks entry and
	// applies t (In Progress -> Evaluated) in one transaction. The entry is
	// frozen only if it is still the draft fm was computed from, identified
	// by its updated_at; otherwise ErrDraftChanged.
	CreateOnEvaluated(ctx context.Context, fm *models.FinalMarks, draftUpdatedAt time.Time, t models.Transition) (*models.Registration, error)
	GetByRegistrationID(ctx context.Context, registrationID string) (*models.FinalMarks, error)
	ListByRegistrationIDs(ctx context.Context, registrationIDs []string) (map[string]models.FinalMarks, error)
}

const finalMarksColumns = `
	id, revaluation_registration_id, revaluation_marks_id, original_final_marks_id,
	internal_marks_obtained, internal_marks_maximum, external_marks_obtained, external_marks_maximum,
	total_marks_obtained, total_marks_maximum, percentage, letter_grade, is_pass,
	original_marks_obtained, original_percentage, original_grade, original_is_pass,
	calculated_by, created_at`

type finalMarksRepository struct {
	*PostgresRepository
}

func NewFinalMarksRepository(db *sql.DB, logger zerolog.Logger) FinalMarksRepository {
	return &finalMarksRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *finalMarksRepository) CreateOnEvaluated(ctx context.Context, fm *models.FinalMarks, draftUpdatedAt time.Time, t models.Transition) (*models.Registration, error) {
	insert := `
		INSERT INTO revaluation_final_marks (` + finalMarksColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	submit := `
		UPDATE revaluation_marks
		SET entry_status = 'Submitted', submitted_at = $2, updated_at = $2
		WHERE id = $1 AND entry_status = 'Draft' AND updated_at = $3 AND marks_obtained = $4
	`

	var updated *models.Registration
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		reg, err := transitionRegistration(ctx, tx, t)
		if err != nil {
			return err
		}
		updated = reg

		result, err := tx.ExecContext(ctx, submit, fm.MarksEntryID, t.At, draftUpdatedAt, fm.ExternalMarks)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return entryNotSubmitted(ctx, tx, fm.MarksEntryID)
		}

		_, err = tx.ExecContext(ctx, insert,
			fm.ID,
			fm.RegistrationID,
			fm.MarksEntryID,
			fm.OriginalFinalMarksID,
			fm.InternalMarks,
			fm.InternalMaximum,
			fm.ExternalMarks,
			fm.ExternalMaximum,
			fm.Marks,
			fm.MarksMaximum,
			fm.Percentage,
			fm.Grade,
			fm.IsPass,
			fm.OriginalMarks,
			fm.OriginalPercentage,
			fm.OriginalGrade,
			fm.OriginalIsPass,
			fm.CalculatedBy,
			fm.CreatedAt,
		)
		return mapPgError(err)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// entryNotSubmitted tells a frozen entry from a draft rewritten after it
// was read.
func entryNotSubmitted(ctx context.Context, tx *sql.Tx, entryID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT entry_status FROM revaluation_marks WHERE id = $1`, entryID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrEntryLocked
	}
	if err != nil {
		return err
	}
	if status == string(models.EntryDraft) {
		return ErrDraftChanged
	}
	return ErrEntryLocked
}

func (r *finalMarksRepository) GetByRegistrationID(ctx context.Context, registrationID string) (*models.FinalMarks, error) {
	query := fmt.Sprintf(`SELECT %s FROM revaluation_final_marks WHERE revaluation_registration_id = $1`, finalMarksColumns)

	fm, err := scanFinalMarks(r.db.QueryRowContext(ctx, query, registrationID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fm, nil
}

func (r *finalMarksRepository) ListByRegistrationIDs(ctx context.Context, registrationIDs []string) (map[string]models.FinalMarks, error) {
	out := make(map[string]models.FinalMarks, len(registrationIDs))
	if len(registrationIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM revaluation_final_marks WHERE revaluation_registration_id = ANY($1)`, finalMarksColumns)
	rows, err := r.db.QueryContext(ctx, query, pq.Array(registrationIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		fm, err := scanFinalMarks(rows)
		if err != nil {
			return nil, err
		}
		out[fm.RegistrationID] = *fm
	}
	return out, rows.Err()
}

func scanFinalMarks(row scanner) (*models.FinalMarks, error) {
	fm := &models.FinalMarks{}
	var grade, originalGrade sql.NullString
	err := row.Scan(
		&fm.ID,
		&fm.RegistrationID,
		&fm.MarksEntryID,
		&fm.OriginalFinalMarksID,
		&fm.InternalMarks,
		&fm.InternalMaximum,
		&fm.ExternalMarks,
		&fm.ExternalMaximum,
		&fm.Marks,
		&fm.MarksMaximum,
		&fm.Percentage,
		&grade,
		&fm.IsPass,
		&fm.OriginalMarks,
		&fm.OriginalPercentage,
		&originalGrade,
		&fm.OriginalIsPass,
		&fm.CalculatedBy,
		&fm.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	fm.Grade = grade.String
	fm.OriginalGrade = originalGrade.String
	return fm, nil
}
