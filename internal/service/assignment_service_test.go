package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

func TestAssign_PartialSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	other := seededRegistration("r3", "c3", 1, models.StatusApproved)
	other.ExamRegistrationID = "er-2"
	env.seed(t,
		seededRegistration("r1", "c1", 1, models.StatusApproved),
		seededRegistration("r2", "c2", 1, models.StatusAssigned),
		other,
	)

	before := time.Now().UTC()
	result, err := env.assignments.Assign(ctx, &models.AssignRequest{
		RegistrationIDs: []string{"r1", "r2", "r3"},
		ExaminerID:      "ex-1",
	}, "coordinator")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"r1", "r3"}, result.Succeeded)
	assert.Equal(t, 2, result.SucceededCount)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, "r2", result.Failed[0].ID)
	assert.Equal(t, string(apperr.KindConflict), result.Failed[0].Kind)

	for _, id := range []string{"r1", "r3"} {
		reg, err := env.regs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAssigned, reg.Status)
		require.NotNil(t, reg.ExaminerID)
		assert.Equal(t, "ex-1", *reg.ExaminerID)
		require.NotNil(t, reg.EvaluationDeadline)
		assert.True(t, reg.EvaluationDeadline.After(before.Add(29*24*time.Hour)))
		require.NotNil(t, reg.ScriptCode)
		assert.Regexp(t, `^RV-[0-9A-F]{8}$`, *reg.ScriptCode)
	}

	untouched, err := env.regs.GetByID(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, untouched.ExaminerID)
}

func TestAssign_PaymentVerifiedIsApprovedImplicitly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusPaymentVerified))

	result, err := env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-1"}, "coordinator")
	require.NoError(t, err)
	require.Equal(t, 1, result.SucceededCount)

	reg, err := env.regs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, reg.Status)
	require.NotNil(t, reg.ApprovedBy)
	assert.Equal(t, "coordinator", *reg.ApprovedBy)
}

func TestAssign_RowErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t,
		seededRegistration("pending", "c1", 1, models.StatusPaymentPending),
		seededRegistration("cancelled", "c2", 1, models.StatusCancelled),
	)

	result, err := env.assignments.Assign(ctx, &models.AssignRequest{
		RegistrationIDs: []string{"pending", "cancelled", "missing", "pending"},
		ExaminerID:      "ex-1",
	}, "coordinator")
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 4)

	reasons := map[string][]string{}
	for _, f := range result.Failed {
		reasons[f.ID] = append(reasons[f.ID], f.Kind+": "+f.Reason)
	}
	assert.Len(t, reasons["pending"], 2)
	assert.Equal(t, []string{"conflict: registration is cancelled"}, reasons["cancelled"])
	assert.Equal(t, []string{"not_found: registration not found"}, reasons["missing"])
}

func TestAssign_ExaminerExclusion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	previous := seededRegistration("old", "c2", 1, models.StatusPublished)
	previous.ExaminerID = stringPtr("ex-2")
	env.seed(t,
		previous,
		seededRegistration("r1", "c1", 1, models.StatusApproved),
		seededRegistration("r2", "c2", 2, models.StatusApproved),
	)

	result, err := env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-original"}, "coordinator")
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, string(apperr.KindValidation), result.Failed[0].Kind)
	assert.Contains(t, result.Failed[0].Reason, "original script")

	result, err = env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{"r2"}, ExaminerID: "ex-2"}, "coordinator")
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.True(t, strings.Contains(result.Failed[0].Reason, "attempt 1"))

	result, err = env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{"r1", "r2"}, ExaminerID: "ex-1"}, "coordinator")
	require.NoError(t, err)
	assert.Equal(t, 2, result.SucceededCount)
}

func TestAssign_NoReassignment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusApproved))

	_, err := env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-1"}, "coordinator")
	require.NoError(t, err)

	result, err := env.assignments.Assign(ctx, &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-2"}, "coordinator")
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Reason, "already assigned")

	reg, err := env.regs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ex-1", *reg.ExaminerID)
}

func TestAssign_WholeCallValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusApproved))

	tests := []struct {
		name  string
		req   *models.AssignRequest
		actor string
		kind  apperr.Kind
	}{
		{"missing actor", &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-1"}, "", apperr.KindValidation},
		{"no ids", &models.AssignRequest{ExaminerID: "ex-1"}, "coordinator", apperr.KindValidation},
		{"unknown examiner", &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-9"}, "coordinator", apperr.KindNotFound},
		{"inactive examiner", &models.AssignRequest{RegistrationIDs: []string{"r1"}, ExaminerID: "ex-retired"}, "coordinator", apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.assignments.Assign(ctx, tt.req, tt.actor)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	reg, err := env.regs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, reg.Status)
}

func TestListAssignable(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seededRegistration("r1", "c1", 1, models.StatusApproved),
		seededRegistration("r2", "c2", 1, models.StatusPaymentVerified),
		seededRegistration("r3", "c3", 1, models.StatusPaymentPending),
	)

	resp, err := env.assignments.ListAssignable(context.Background(), models.Scope{InstitutionsID: testInstitution}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 20, resp.Limit)
}

func TestDirectoryLookups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	examiners, err := env.assignments.ListExaminers(ctx, testInstitution)
	require.NoError(t, err)
	assert.Len(t, examiners, 3)
	for _, e := range examiners {
		assert.True(t, e.IsActive)
	}

	sessions, err := env.applications.ListSessions(ctx, testInstitution)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, testSession, sessions[0].ID)

	_, err = env.assignments.ListExaminers(ctx, " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = env.applications.ListSessions(ctx, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
