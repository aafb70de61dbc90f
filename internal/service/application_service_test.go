package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/revaluation"
)

func TestCreateApplication_TwoEligibleCourses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, seededRegistration("old-c1", "c1", 1, models.StatusPublished))

	resp, err := env.applications.CreateApplication(ctx, env.applicationRequest("c1", "c2"))
	require.NoError(t, err)
	require.Len(t, resp.Registrations, 2)
	assert.Equal(t, 1000.0, resp.TotalFee)

	byCourse := map[string]models.Registration{}
	for _, reg := range resp.Registrations {
		assert.Equal(t, models.StatusPaymentPending, reg.Status)
		assert.Equal(t, models.PaymentPending, reg.PaymentStatus)
		assert.Equal(t, testExamReg, reg.ExamRegistrationID)
		byCourse[reg.CourseID] = reg
	}
	assert.Equal(t, 2, byCourse["c1"].AttemptNumber)
	require.NotNil(t, byCourse["c1"].PreviousRevaluationID)
	assert.Equal(t, "old-c1", *byCourse["c1"].PreviousRevaluationID)
	assert.Equal(t, 1, byCourse["c2"].AttemptNumber)
	assert.Nil(t, byCourse["c2"].PreviousRevaluationID)

	stored, err := env.regs.ListByExamRegistration(ctx, testExamReg)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestCreateApplication_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*models.CreateApplicationRequest)
		field  string
	}{
		{"no courses", func(r *models.CreateApplicationRequest) { r.CourseIDs = nil }, "course_ids"},
		{"six courses", func(r *models.CreateApplicationRequest) {
			r.CourseIDs = []string{"a", "b", "c", "d", "e", "f"}
			r.PaymentAmount = 6 * testFee
		}, "course_ids"},
		{"duplicate course", func(r *models.CreateApplicationRequest) { r.CourseIDs = []string{"c1", "c1"} }, "course_ids"},
		{"missing transaction", func(r *models.CreateApplicationRequest) { r.PaymentTransactionID = "" }, "payment_transaction_id"},
		{"fee mismatch", func(r *models.CreateApplicationRequest) { r.PaymentAmount = testFee }, "payment_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.applicationRequest("c1", "c2")
			tt.mutate(req)

			_, err := env.applications.CreateApplication(context.Background(), req)
			require.Error(t, err)

			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			require.NotEmpty(t, appErr.Fields)
			assert.Equal(t, tt.field, appErr.Fields[0].Field)
		})
	}

	regs, err := env.regs.ListByExamRegistration(context.Background(), testExamReg)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestCreateApplication_FeeWithinTolerance(t *testing.T) {
	env := newTestEnv(t)
	req := env.applicationRequest("c1")
	req.PaymentAmount = testFee + 0.005

	_, err := env.applications.CreateApplication(context.Background(), req)
	assert.NoError(t, err)
}

func TestCreateApplication_IneligibleCourseCreatesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	results := env.exams.results[testExamReg]
	results[1].CourseType = "Laboratory"
	env.exams.results[testExamReg] = results

	_, err := env.applications.CreateApplication(ctx, env.applicationRequest("c1", "c2"))
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindEligibility, appErr.Kind)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "c2", appErr.Details[0].ID)
	assert.Equal(t, revaluation.ReasonPractical, appErr.Details[0].Reason)

	regs, err := env.regs.ListByExamRegistration(ctx, testExamReg)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestCreateApplication_ActiveRegistrationBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seededRegistration("open", "c1", 1, models.StatusAssigned))

	_, err := env.applications.CreateApplication(context.Background(), env.applicationRequest("c1"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindEligibility))
}

func TestCreateApplication_ConcurrentSubmissionsCreateOnce(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.applications.CreateApplication(context.Background(), env.applicationRequest("c1"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := apperr.KindOf(err)
		assert.True(t, kind == apperr.KindConflict || kind == apperr.KindEligibility, "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestCreateApplication_ExternalFailurePropagates(t *testing.T) {
	env := newTestEnv(t)
	env.exams.down = true

	_, err := env.applications.CreateApplication(context.Background(), env.applicationRequest("c1"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindExternalDependency))
}

func TestCheckEligibility(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		seededRegistration("a1", "c2", 1, models.StatusPublished),
		seededRegistration("a2", "c2", 2, models.StatusCancelled),
		seededRegistration("a3", "c2", 3, models.StatusPublished),
	)

	resp, err := env.applications.CheckEligibility(context.Background(), testInstitution, testSession, testRegNo)
	require.NoError(t, err)
	assert.Equal(t, testFee, resp.FeePerCourse)
	require.Len(t, resp.Courses, 2)

	for _, c := range resp.Courses {
		switch c.CourseID {
		case "c1":
			assert.True(t, c.IsEligible)
			assert.Equal(t, 1, c.NextAttemptNumber)
		case "c2":
			assert.False(t, c.IsEligible)
			assert.Equal(t, revaluation.ReasonMaxAttempts, c.IneligibleReason)
		}
	}
}

func TestWorkflow_PaymentApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusPaymentPending))

	_, err := env.applications.Approve(ctx, "r1", "admin")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	reg, err := env.applications.VerifyPayment(ctx, "r1", "accounts")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentVerified, reg.Status)
	assert.Equal(t, models.PaymentVerified, reg.PaymentStatus)
	require.NotNil(t, reg.PaymentVerifiedBy)
	assert.Equal(t, "accounts", *reg.PaymentVerifiedBy)

	reg, err = env.applications.Approve(ctx, "r1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, reg.Status)
	require.NotNil(t, reg.ApprovedBy)

	require.Len(t, env.events.changes, 2)
	assert.Equal(t, string(models.StatusPaymentVerified), env.events.changes[1].From)
	assert.Equal(t, string(models.StatusApproved), env.events.changes[1].To)
}

func TestWorkflow_ActorRequired(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusPaymentPending))

	_, err := env.applications.VerifyPayment(context.Background(), "r1", " ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRejectPayment_Cancels(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusPaymentPending))

	reg, err := env.applications.RejectPayment(context.Background(), "r1", "transaction not found", "accounts")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, reg.Status)
	assert.Equal(t, models.PaymentRejected, reg.PaymentStatus)
	require.NotNil(t, reg.CancellationReason)
	assert.True(t, strings.HasSuffix(*reg.CancellationReason, "transaction not found"))
}

func TestReject_IsTerminal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, seededRegistration("r1", "c1", 1, models.StatusPaymentVerified))

	_, err := env.applications.Reject(ctx, "r1", "", "admin")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	reg, err := env.applications.Reject(ctx, "r1", "duplicate request", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, reg.Status)

	_, err = env.applications.Cancel(ctx, "r1", "changed mind", "student")
	require.Error(t, err)
	assert.Equal(t, "registration is rejected", apperr.Reason(err))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t,
		seededRegistration("r1", "c1", 1, models.StatusApproved),
		seededRegistration("r2", "c2", 1, models.StatusEvaluated),
	)

	_, err := env.applications.Cancel(ctx, "r1", "", "student")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	reg, err := env.applications.Cancel(ctx, "r1", "withdrawn by student", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, reg.Status)

	_, err = env.applications.Cancel(ctx, "r1", "again", "")
	require.Error(t, err)
	assert.Equal(t, "registration is cancelled", apperr.Reason(err))

	_, err = env.applications.VerifyPayment(ctx, "r1", "accounts")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "registration is cancelled", apperr.Reason(err))

	_, err = env.applications.Cancel(ctx, "r2", "too late", "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestGetByID_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.applications.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestList_FiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t,
		seededRegistration("r1", "c1", 1, models.StatusApproved),
		seededRegistration("r2", "c2", 1, models.StatusPaymentVerified),
	)

	resp, err := env.applications.List(ctx, models.RegistrationFilter{
		InstitutionsID: testInstitution,
		Statuses:       []models.RegistrationStatus{models.StatusApproved, models.StatusPaymentVerified},
	}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Registrations, 1)
	assert.Equal(t, 1, resp.Limit)

	_, err = env.applications.List(ctx, models.RegistrationFilter{
		Statuses: []models.RegistrationStatus{"Shipped"},
	}, 1, 10)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestReceipt_UploadAndFetch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t,
		seededRegistration("r1", "c1", 1, models.StatusPaymentPending),
		seededRegistration("r2", "c2", 1, models.StatusApproved),
	)

	_, err := env.applications.GetReceipt(ctx, "r1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	up, err := env.applications.UploadReceipt(ctx, "r1", "Receipt.PDF", strings.NewReader("%PDF"), 4, "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.ObjectKey, "receipts/r1/"))
	assert.True(t, strings.HasSuffix(up.ObjectKey, ".pdf"))
	assert.Equal(t, []byte("%PDF"), env.receipts.objects[up.ObjectKey])

	got, err := env.applications.GetReceipt(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, up.ObjectKey, got.ObjectKey)
	assert.Contains(t, got.URL, up.ObjectKey)

	_, err = env.applications.UploadReceipt(ctx, "r2", "r.pdf", strings.NewReader("x"), 1, "application/pdf")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}
