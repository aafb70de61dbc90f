package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/models"
)

// ApplyFunc runs inside the publish transaction while the registration row
// is locked. Returning an error aborts the status change.
type ApplyFunc func(ctx context.Context, reg *models.Registration) error

type RegistrationRepository interface {
	CreateBatch(ctx context.Context, regs []models.Registration) error
	GetByID(ctx context.Context, id string) (*models.Registration, error)
	GetByScriptCode(ctx context.Context, scriptCode string) (*models.Registration, error)
	ListByExamRegistration(ctx context.Context, examRegistrationID string) ([]models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	Transition(ctx context.Context, t models.Transition) (*models.Registration, error)
	Publish(ctx context.Context, t models.Transition, apply ApplyFunc) (*models.Registration, error)
	SetReceipt(ctx context.Context, id, objectKey string, status models.RegistrationStatus) error
}

const registrationColumns = `
	id, institutions_id, examination_session_id, exam_registration_id, course_id,
	original_final_marks_id, student_register_number, student_name, course_code, course_title,
	attempt_number, previous_revaluation_id,
	fee_amount, payment_status, payment_transaction_id, payment_date, payment_amount,
	payment_verified_by, payment_verified_date, receipt_object_key,
	status, reason_for_revaluation, examiner_id, script_code, assigned_date, evaluation_deadline,
	approved_by, approved_date, rejection_reason, cancellation_reason,
	verified_by, verified_date, published_by, published_date, use_revaluation_marks,
	application_date, created_at, updated_at`

type registrationRepository struct {
	*PostgresRepository
}

func NewRegistrationRepository(db *sql.DB, logger zerolog.Logger) RegistrationRepository {
	return &registrationRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *registrationRepository) CreateBatch(ctx context.Context, regs []models.Registration) error {
	query := `
		INSERT INTO revaluation_registrations (` + registrationColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37, $38
		)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		for i := range regs {
			reg := &regs[i]
			_, err := tx.ExecContext(ctx, query,
				reg.ID,
				reg.InstitutionsID,
				reg.ExaminationSessionID,
				reg.ExamRegistrationID,
				reg.CourseID,
				reg.OriginalFinalMarksID,
				reg.StudentRegisterNumber,
				reg.StudentName,
				reg.CourseCode,
				reg.CourseTitle,
				reg.AttemptNumber,
				reg.PreviousRevaluationID,
				reg.FeeAmount,
				reg.PaymentStatus,
				reg.PaymentTransactionID,
				reg.PaymentDate,
				reg.PaymentAmount,
				reg.PaymentVerifiedBy,
				reg.PaymentVerifiedDate,
				reg.ReceiptObjectKey,
				reg.Status,
				reg.ReasonForRevaluation,
				reg.ExaminerID,
				reg.ScriptCode,
				reg.AssignedDate,
				reg.EvaluationDeadline,
				reg.ApprovedBy,
				reg.ApprovedDate,
				reg.RejectionReason,
				reg.CancellationReason,
				reg.VerifiedBy,
				reg.VerifiedDate,
				reg.PublishedBy,
				reg.PublishedDate,
				reg.UseRevaluationMarks,
				reg.ApplicationDate,
				reg.CreatedAt,
				reg.UpdatedAt,
			)
			if err != nil {
				return mapPgError(err)
			}
		}
		return nil
	})
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	return r.getOne(ctx, r.db, "id", id, false)
}

func (r *registrationRepository) GetByScriptCode(ctx context.Context, scriptCode string) (*models.Registration, error) {
	return r.getOne(ctx, r.db, "script_code", scriptCode, false)
}

func (r *registrationRepository) getOne(ctx context.Context, q querier, column, value string, forUpdate bool) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM revaluation_registrations WHERE %s = $1`, registrationColumns, column)
	if forUpdate {
		query += " FOR UPDATE"
	}

	reg, err := scanRegistration(q.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) ListByExamRegistration(ctx context.Context, examRegistrationID string) ([]models.Registration, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM revaluation_registrations
		WHERE exam_registration_id = $1
		ORDER BY course_id, attempt_number
	`, registrationColumns)

	rows, err := r.db.QueryContext(ctx, query, examRegistrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRegistrations(rows)
}

func (r *registrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	whereClauses := []string{}
	args := []interface{}{}
	argCount := 1

	add := func(clause string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf(clause, argCount))
		args = append(args, value)
		argCount++
	}

	if filter.InstitutionsID != "" {
		add("institutions_id = $%d", filter.InstitutionsID)
	}
	if filter.ExaminationSessionID != "" {
		add("examination_session_id = $%d", filter.ExaminationSessionID)
	}
	if filter.ExamRegistrationID != "" {
		add("exam_registration_id = $%d", filter.ExamRegistrationID)
	}
	if filter.CourseID != "" {
		add("course_id = $%d", filter.CourseID)
	}
	if filter.ExaminerID != "" {
		add("examiner_id = $%d", filter.ExaminerID)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(statusStrings(filter.Statuses)))
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", string(filter.PaymentStatus))
	}
	if filter.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(student_register_number ILIKE $%[1]d ESCAPE '\\' OR student_name ILIKE $%[1]d ESCAPE '\\' OR course_code ILIKE $%[1]d ESCAPE '\\' OR course_title ILIKE $%[1]d ESCAPE '\\')",
			argCount))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argCount++
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM revaluation_registrations %s", whereSQL)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM revaluation_registrations
		%s
		ORDER BY application_date DESC, id
	`, registrationColumns, whereSQL)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	regs, err := collectRegistrations(rows)
	if err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}

func (r *registrationRepository) Transition(ctx context.Context, t models.Transition) (*models.Registration, error) {
	return transitionRegistration(ctx, r.db, t)
}

func (r *registrationRepository) Publish(ctx context.Context, t models.Transition, apply ApplyFunc) (*models.Registration, error) {
	var published *models.Registration
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.getOne(ctx, tx, "id", t.RegistrationID, true)
		if err != nil {
			return err
		}
		if current == nil || !statusIn(current.Status, t.From) {
			return ErrStaleStatus
		}

		if err := apply(ctx, current); err != nil {
			return err
		}

		published, err = transitionRegistration(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}

func (r *registrationRepository) SetReceipt(ctx context.Context, id, objectKey string, status models.RegistrationStatus) error {
	query := `
		UPDATE revaluation_registrations
		SET receipt_object_key = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, id, objectKey, string(status))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// transitionRegistration is the single compare-and-set used for every status
// change. Patch columns left nil keep their stored value.
func transitionRegistration(ctx context.Context, q querier, t models.Transition) (*models.Registration, error) {
	query := `
		UPDATE revaluation_registrations SET
			status = $2,
			payment_status = COALESCE($3, payment_status),
			payment_verified_by = COALESCE($4, payment_verified_by),
			payment_verified_date = COALESCE($5, payment_verified_date),
			examiner_id = COALESCE($6, examiner_id),
			script_code = COALESCE($7, script_code),
			assigned_date = COALESCE($8, assigned_date),
			evaluation_deadline = COALESCE($9, evaluation_deadline),
			approved_by = COALESCE($10, approved_by),
			approved_date = COALESCE($11, approved_date),
			rejection_reason = COALESCE($12, rejection_reason),
			cancellation_reason = COALESCE($13, cancellation_reason),
			verified_by = COALESCE($14, verified_by),
			verified_date = COALESCE($15, verified_date),
			published_by = COALESCE($16, published_by),
			published_date = COALESCE($17, published_date),
			use_revaluation_marks = COALESCE($18, use_revaluation_marks),
			updated_at = $19
		WHERE id = $1 AND status = ANY($20)
		RETURNING ` + registrationColumns

	p := t.Patch
	var paymentStatus *string
	if p.PaymentStatus != nil {
		s := string(*p.PaymentStatus)
		paymentStatus = &s
	}

	reg, err := scanRegistration(q.QueryRowContext(ctx, query,
		t.RegistrationID,
		string(t.To),
		paymentStatus,
		p.PaymentVerifiedBy,
		p.PaymentVerifiedDate,
		p.ExaminerID,
		p.ScriptCode,
		p.AssignedDate,
		p.EvaluationDeadline,
		p.ApprovedBy,
		p.ApprovedDate,
		p.RejectionReason,
		p.CancellationReason,
		p.VerifiedBy,
		p.VerifiedDate,
		p.PublishedBy,
		p.PublishedDate,
		p.UseRevaluationMarks,
		t.At,
		pq.Array(statusStrings(t.From)),
	))
	if err == sql.ErrNoRows {
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return reg, nil
}

func scanRegistration(row scanner) (*models.Registration, error) {
	reg := &models.Registration{}
	err := row.Scan(
		&reg.ID,
		&reg.InstitutionsID,
		&reg.ExaminationSessionID,
		&reg.ExamRegistrationID,
		&reg.CourseID,
		&reg.OriginalFinalMarksID,
		&reg.StudentRegisterNumber,
		&reg.StudentName,
		&reg.CourseCode,
		&reg.CourseTitle,
		&reg.AttemptNumber,
		&reg.PreviousRevaluationID,
		&reg.FeeAmount,
		&reg.PaymentStatus,
		&reg.PaymentTransactionID,
		&reg.PaymentDate,
		&reg.PaymentAmount,
		&reg.PaymentVerifiedBy,
		&reg.PaymentVerifiedDate,
		&reg.ReceiptObjectKey,
		&reg.Status,
		&reg.ReasonForRevaluation,
		&reg.ExaminerID,
		&reg.ScriptCode,
		&reg.AssignedDate,
		&reg.EvaluationDeadline,
		&reg.ApprovedBy,
		&reg.ApprovedDate,
		&reg.RejectionReason,
		&reg.CancellationReason,
		&reg.VerifiedBy,
		&reg.VerifiedDate,
		&reg.PublishedBy,
		&reg.PublishedDate,
		&reg.UseRevaluationMarks,
		&reg.ApplicationDate,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func collectRegistrations(rows *sql.Rows) ([]models.Registration, error) {
	var regs []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func statusStrings(statuses []models.RegistrationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func statusIn(s models.RegistrationStatus, set []models.RegistrationStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
