package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/models"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/repository/memory"
)

const (
	testInstitution = "inst-1"
	testSession     = "sess-1"
	testRegNo       = "21CS001"
	testExamReg     = "er-1"
	testFee         = 500.0
)

type fakeExams struct {
	mu       sync.Mutex
	regs     map[string]models.ExamRegistration
	results  map[string][]models.CourseResult
	scale    models.GradingScale
	writes   []models.ResultWrite
	writeErr error
	down     bool
}

func newFakeExams() *fakeExams {
	return &fakeExams{
		regs: map[string]models.ExamRegistration{
			testSession + "/" + testRegNo: {
				ID:                   testExamReg,
				ExaminationSessionID: testSession,
				RegisterNumber:       testRegNo,
				StudentName:          "Asha Rao",
			},
		},
		results: map[string][]models.CourseResult{
			testExamReg: {
				theoryResult("c1", "fm-1", 10, 35, false),
				theoryResult("c2", "fm-2", 15, 62, true),
			},
		},
		scale: models.GradingScale{
			PassPercentage: 40,
			Bands: []models.GradeBand{
				{MinPercentage: 90, Grade: "O"},
				{MinPercentage: 75, Grade: "A"},
				{MinPercentage: 60, Grade: "B"},
				{MinPercentage: 40, Grade: "C"},
				{MinPercentage: 0, Grade: "F"},
			},
		},
	}
}

// theoryResult builds a published theory result out of 100 (25 internal).
func theoryResult(courseID, finalMarksID string, internal, total float64, pass bool) models.CourseResult {
	grade := "F"
	if pass {
		grade = "B"
	}
	return models.CourseResult{
		FinalMarksID:          finalMarksID,
		CourseID:              courseID,
		CourseCode:            "CS" + courseID,
		CourseTitle:           "Course " + courseID,
		CourseType:            "Theory",
		InternalMarksObtained: internal,
		InternalMarksMaximum:  25,
		TotalMarksObtained:    &total,
		TotalMarksMaximum:     100,
		Percentage:            total,
		Grade:                 grade,
		IsPass:                pass,
		ResultStatus:          models.ResultStatusPublished,
		AttendanceStatus:      "Present",
		OriginalExaminerID:    "ex-original",
	}
}

func (f *fakeExams) FindExamRegistration(_ context.Context, sessionID, registerNumber string) (*models.ExamRegistration, error) {
	if f.down {
		return nil, apperr.External("exam service", fmt.Errorf("connection refused"))
	}
	reg, ok := f.regs[sessionID+"/"+registerNumber]
	if !ok {
		return nil, apperr.NotFound("exam registration", registerNumber)
	}
	return &reg, nil
}

func (f *fakeExams) GetResults(_ context.Context, examRegistrationID string) ([]models.CourseResult, error) {
	if f.down {
		return nil, apperr.External("exam service", fmt.Errorf("connection refused"))
	}
	return append([]models.CourseResult(nil), f.results[examRegistrationID]...), nil
}

func (f *fakeExams) GetGradingScale(context.Context, string) (*models.GradingScale, error) {
	scale := f.scale
	return &scale, nil
}

func (f *fakeExams) WriteResult(_ context.Context, write models.ResultWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, write)
	return nil
}

func (f *fakeExams) ListSessions(context.Context, string) ([]models.ExaminationSession, error) {
	return []models.ExaminationSession{{ID: testSession, SessionCode: "NOV-2026"}}, nil
}

func (f *fakeExams) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeFees struct {
	fee float64
}

func (f fakeFees) GetFeeConfig(_ context.Context, institutionsID string) (*models.FeeConfig, error) {
	return &models.FeeConfig{InstitutionsID: institutionsID, FeePerCourse: f.fee}, nil
}

type fakeExaminers map[string]models.Examiner

func (f fakeExaminers) ListActive(context.Context, string) ([]models.Examiner, error) {
	var out []models.Examiner
	for _, e := range f {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f fakeExaminers) Get(_ context.Context, id string) (*models.Examiner, error) {
	e, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("examiner", id)
	}
	return &e, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	changes   []models.StatusChangedEvent
	published []models.PublishedEvent
}

func (f *fakeEvents) PublishStatusChanged(_ context.Context, e *models.StatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, *e)
	return nil
}

func (f *fakeEvents) PublishPublished(_ context.Context, e *models.PublishedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, *e)
	return nil
}

func (f *fakeEvents) Close() error { return nil }

type fakeReceipts struct {
	objects map[string][]byte
}

func (f *fakeReceipts) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.objects[key] = buf.Bytes()
	return nil
}

func (f *fakeReceipts) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://receipts.local/" + key, nil
}

type testEnv struct {
	regs     repository.RegistrationRepository
	marks    repository.MarksRepository
	finals   repository.FinalMarksRepository
	exams    *fakeExams
	events   *fakeEvents
	receipts *fakeReceipts

	applications ApplicationService
	assignments  AssignmentService
	evaluation   EvaluationService
	comparisons  ComparisonService
	publishing   PublishingService
	reports      ReportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	env := &testEnv{
		regs:     memory.NewRegistrationRepository(store),
		marks:    memory.NewMarksRepository(store),
		finals:   memory.NewFinalMarksRepository(store),
		exams:    newFakeExams(),
		events:   &fakeEvents{},
		receipts: &fakeReceipts{objects: make(map[string][]byte)},
	}
	examiners := fakeExaminers{
		"ex-1":        {ID: "ex-1", Name: "Dr. Iyer", IsActive: true},
		"ex-2":        {ID: "ex-2", Name: "Dr. Menon", IsActive: true},
		"ex-original": {ID: "ex-original", Name: "Dr. Pillai", IsActive: true},
		"ex-retired":  {ID: "ex-retired", Name: "Dr. Nair", IsActive: false},
	}
	settings := DefaultSettings()
	logger := zerolog.Nop()

	env.applications = NewApplicationService(env.regs, env.exams, fakeFees{fee: testFee}, env.receipts, env.events, nil, settings, logger)
	env.assignments = NewAssignmentService(env.regs, env.exams, examiners, env.events, nil, settings, logger)
	env.evaluation = NewEvaluationService(env.regs, env.marks, env.finals, env.exams, env.events, nil, logger)
	env.comparisons = NewComparisonService(env.regs, env.finals, env.exams, logger)
	env.publishing = NewPublishingService(env.regs, env.finals, env.exams, env.events, nil, logger)
	env.reports = NewReportService(env.regs, env.finals, logger)
	return env
}

func (env *testEnv) applicationRequest(courseIDs ...string) *models.CreateApplicationRequest {
	return &models.CreateApplicationRequest{
		InstitutionsID:       testInstitution,
		ExaminationSessionID: testSession,
		RegisterNumber:       testRegNo,
		CourseIDs:            courseIDs,
		PaymentTransactionID: "TXN-001",
		PaymentDate:          time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC),
		PaymentAmount:        testFee * float64(len(courseIDs)),
	}
}

func (env *testEnv) seed(t *testing.T, regs ...models.Registration) {
	t.Helper()
	if err := env.regs.CreateBatch(context.Background(), regs); err != nil {
		t.Fatalf("seed registrations: %v", err)
	}
}

func seededRegistration(id, courseID string, attempt int, status models.RegistrationStatus) models.Registration {
	now := time.Now().UTC()
	finalMarksID := map[string]string{"c1": "fm-1", "c2": "fm-2"}[courseID]
	return models.Registration{
		ID:                    id,
		InstitutionsID:        testInstitution,
		ExaminationSessionID:  testSession,
		ExamRegistrationID:    testExamReg,
		CourseID:              courseID,
		OriginalFinalMarksID:  finalMarksID,
		StudentRegisterNumber: testRegNo,
		StudentName:           "Asha Rao",
		CourseCode:            "CS" + courseID,
		CourseTitle:           "Course " + courseID,
		AttemptNumber:         attempt,
		FeeAmount:             testFee,
		PaymentStatus:         models.PaymentPending,
		PaymentTransactionID:  "TXN-" + id,
		PaymentDate:           now,
		PaymentAmount:         testFee,
		Status:                status,
		ApplicationDate:       now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func floatPtr(v float64) *float64 { return &v }
