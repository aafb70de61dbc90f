package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
)

// assigned seeds an Approved registration, assigns it and returns its
// script code.
func (env *testEnv) assigned(t *testing.T, id, courseID, examinerID string) string {
	t.Helper()
	ctx := context.Background()
	env.seed(t, seededRegistration(id, courseID, 1, models.StatusApproved))

	result, err := env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{id}, ExaminerID: examinerID}, "coordinator")
	require.NoError(t, err)
	require.Equal(t, 1, result.SucceededCount, "assign %s: %+v", id, result.Failed)

	reg, err := env.regs.GetByID(ctx, id)
	require.NoError(t, err)
	return *reg.ScriptCode
}

// verified drives a registration all the way to Verified.
func (env *testEnv) verified(t *testing.T, id, courseID string, marks float64) {
	t.Helper()
	ctx := context.Background()
	code := env.assigned(t, id, courseID, "ex-1")

	_, err := env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(marks), MarksOutOf: 75})
	require.NoError(t, err)
	_, err = env.evaluation.Finalize(ctx, "ex-1", code)
	require.NoError(t, err)
	_, err = env.evaluation.Verify(ctx, id, "controller")
	require.NoError(t, err)
}

func TestBlindScript_HidesOriginalAndIdentity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	scripts, err := env.evaluation.ListScripts(ctx, "ex-1")
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, code, scripts[0].ScriptCode)
	assert.Equal(t, models.StatusAssigned, scripts[0].Status)
	assert.NotNil(t, scripts[0].EvaluationDeadline)
	assert.Nil(t, scripts[0].Entry)

	raw, err := json.Marshal(scripts[0])
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, hidden := range []string{"id", "student_name", "student_register_number", "original", "percentage", "grade", "is_pass", "exam_registration_id"} {
		assert.NotContains(t, fields, hidden)
	}
	assert.NotContains(t, string(raw), "Asha Rao")
	assert.NotContains(t, string(raw), testRegNo)
	assert.NotContains(t, string(raw), "r1")

	others, err := env.evaluation.ListScripts(ctx, "ex-2")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestGetScript_OtherExaminerSeesNothing(t *testing.T) {
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.evaluation.GetScript(context.Background(), "ex-2", code)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSaveMarks_FirstSaveStartsEvaluation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	script, err := env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{
		MarksObtained:     floatPtr(40),
		MarksOutOf:        75,
		QuestionWiseMarks: map[string]float64{"q1": 20, "q2": 20},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, script.Status)
	require.NotNil(t, script.Entry)
	assert.Equal(t, models.EntryDraft, script.Entry.EntryStatus)

	script, err = env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(45), MarksOutOf: 75})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, script.Status)

	entry, err := env.marks.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 45.0, entry.MarksObtained)

	reg, err := env.regs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, reg.Status)
}

func TestSaveMarks_Validation(t *testing.T) {
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	tests := []struct {
		name string
		req  *models.SaveMarksRequest
	}{
		{"missing marks", &models.SaveMarksRequest{MarksOutOf: 75}},
		{"negative", &models.SaveMarksRequest{MarksObtained: floatPtr(-1), MarksOutOf: 75}},
		{"above maximum", &models.SaveMarksRequest{MarksObtained: floatPtr(76), MarksOutOf: 75}},
		{"zero maximum", &models.SaveMarksRequest{MarksObtained: floatPtr(0), MarksOutOf: 0}},
		{"question total above maximum", &models.SaveMarksRequest{
			MarksObtained:     floatPtr(50),
			MarksOutOf:        75,
			QuestionWiseMarks: map[string]float64{"q1": 50, "q2": 30},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.evaluation.SaveMarks(context.Background(), "ex-1", code, tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}

	reg, err := env.regs.GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, reg.Status)
}

func TestFinalize_ComputesFinalMarks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.evaluation.Finalize(ctx, "ex-1", code)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(45), MarksOutOf: 75})
	require.NoError(t, err)

	script, err := env.evaluation.Finalize(ctx, "ex-1", code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEvaluated, script.Status)
	assert.Equal(t, models.EntrySubmitted, script.Entry.EntryStatus)

	fm, err := env.finals.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, fm)
	assert.Equal(t, 55.0, fm.Marks)
	assert.Equal(t, 100.0, fm.MarksMaximum)
	assert.Equal(t, 55.0, fm.Percentage)
	assert.Equal(t, "C", fm.Grade)
	assert.True(t, fm.IsPass)
	assert.Equal(t, 35.0, fm.OriginalMarks)
	assert.False(t, fm.OriginalIsPass)
	assert.Equal(t, "fm-1", fm.OriginalFinalMarksID)
	assert.Equal(t, "ex-1", fm.CalculatedBy)

	_, err = env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(70), MarksOutOf: 75})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = env.evaluation.Finalize(ctx, "ex-1", code)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.evaluation.Verify(ctx, "r1", "controller")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(45), MarksOutOf: 75})
	require.NoError(t, err)
	_, err = env.evaluation.Finalize(ctx, "ex-1", code)
	require.NoError(t, err)

	reg, err := env.evaluation.Verify(ctx, "r1", "controller")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, reg.Status)
	require.NotNil(t, reg.VerifiedBy)
	assert.Equal(t, "controller", *reg.VerifiedBy)
}

func TestScript_CancelledIsRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.applications.Cancel(ctx, "r1", "student withdrew", "")
	require.NoError(t, err)

	_, err = env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(45), MarksOutOf: 75})
	require.Error(t, err)
	assert.Equal(t, "registration is cancelled", apperr.Reason(err))
}

func TestSaveMarks_DenominatorMustMatchCourse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(25), MarksOutOf: 25})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "marks_out_of", appErr.Fields[0].Field)

	reg, err := env.regs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, reg.Status, "a rejected save must not start the evaluation")
}

func TestFinalize_RejectsDraftWithForeignDenominator(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.marks.SaveDraft(ctx, &models.MarksEntry{
		ID:             "m-legacy",
		RegistrationID: "r1",
		ExaminerID:     "ex-1",
		MarksObtained:  25,
		MarksOutOf:     25,
		UpdatedAt:      time.Now(),
	}, &models.Transition{
		RegistrationID: "r1",
		From:           []models.RegistrationStatus{models.StatusAssigned},
		To:             models.StatusInProgress,
		At:             time.Now(),
	})
	require.NoError(t, err)

	_, err = env.evaluation.Finalize(ctx, "ex-1", code)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	fm, err := env.finals.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, fm)
	reg, err := env.regs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, reg.Status)
}

// rewritingMarks rewrites the draft once, right after the first read, the
// way a concurrent save from a second browser tab would.
type rewritingMarks struct {
	repository.MarksRepository
	once    sync.Once
	rewrite models.MarksEntry
}

func (m *rewritingMarks) GetByRegistrationID(ctx context.Context, registrationID string) (*models.MarksEntry, error) {
	entry, err := m.MarksRepository.GetByRegistrationID(ctx, registrationID)
	if err != nil || entry == nil {
		return entry, err
	}
	m.once.Do(func() {
		rewrite := m.rewrite
		_, err = m.MarksRepository.SaveDraft(ctx, &rewrite, nil)
	})
	return entry, err
}

func TestFinalize_DraftRewrittenDuringFinalize(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := env.assigned(t, "r1", "c1", "ex-1")

	_, err := env.evaluation.SaveMarks(ctx, "ex-1", code, &models.SaveMarksRequest{MarksObtained: floatPtr(20), MarksOutOf: 75})
	require.NoError(t, err)

	marks := &rewritingMarks{
		MarksRepository: env.marks,
		rewrite: models.MarksEntry{
			ID:             "m-rewrite",
			RegistrationID: "r1",
			ExaminerID:     "ex-1",
			MarksObtained:  70,
			MarksOutOf:     75,
			UpdatedAt:      time.Now().Add(time.Minute),
		},
	}
	evaluation := NewEvaluationService(env.regs, marks, env.finals, env.exams, env.events, nil, zerolog.Nop())

	_, err = evaluation.Finalize(ctx, "ex-1", code)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	fm, err := env.finals.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, fm, "final marks must not be frozen from a stale draft")
	entry, err := env.marks.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryDraft, entry.EntryStatus)
	assert.Equal(t, 70.0, entry.MarksObtained)

	_, err = evaluation.Finalize(ctx, "ex-1", code)
	require.NoError(t, err)

	fm, err = env.finals.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, fm)
	assert.Equal(t, 70.0, fm.ExternalMarks)
	assert.Equal(t, 80.0, fm.Marks)
	entry, err = env.marks.GetByRegistrationID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.EntrySubmitted, entry.EntryStatus)
	assert.Equal(t, fm.ExternalMarks, entry.MarksObtained)
}
