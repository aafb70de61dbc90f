package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/models"
)

const examServiceName = "exam service"

// ExamClient talks to the examination subsystem, which owns exam
// registrations, original results and the grading rules.
type ExamClient interface {
	FindExamRegistration(ctx context.Context, sessionID, registerNumber string) (*models.ExamRegistration, error)
	GetResults(ctx context.Context, examRegistrationID string) ([]models.CourseResult, error)
	GetGradingScale(ctx context.Context, courseID string) (*models.GradingScale, error)
	WriteResult(ctx context.Context, write models.ResultWrite) error
	ListSessions(ctx context.Context, institutionsID string) ([]models.ExaminationSession, error)
}

type examClient struct {
	http *jsonClient
}

func NewExamClient(cfg ClientConfig, m *metrics.Metrics, logger zerolog.Logger) ExamClient {
	return &examClient{http: newJSONClient("exams", cfg, m, logger)}
}

func (c *examClient) FindExamRegistration(ctx context.Context, sessionID, registerNumber string) (*models.ExamRegistration, error) {
	q := url.Values{}
	q.Set("examination_session_id", sessionID)
	q.Set("register_number", registerNumber)

	var reg models.ExamRegistration
	err := c.http.do(ctx, http.MethodGet, "/api/v1/exam-registrations/lookup?"+q.Encode(), nil, &reg)
	if err == errNotFound {
		return nil, apperr.NotFound("exam registration", registerNumber)
	}
	if err != nil {
		return nil, apperr.External(examServiceName, err)
	}
	if reg.ID == "" {
		return nil, apperr.External(examServiceName, fmt.Errorf("exam registration without id for %s", registerNumber))
	}
	return &reg, nil
}

func (c *examClient) GetResults(ctx context.Context, examRegistrationID string) ([]models.CourseResult, error) {
	var results []models.CourseResult
	path := fmt.Sprintf("/api/v1/exam-registrations/%s/results", url.PathEscape(examRegistrationID))

	err := c.http.do(ctx, http.MethodGet, path, nil, &results)
	if err == errNotFound {
		return nil, apperr.NotFound("exam registration", examRegistrationID)
	}
	if err != nil {
		return nil, apperr.External(examServiceName, err)
	}
	for _, r := range results {
		if r.CourseID == "" || r.FinalMarksID == "" {
			return nil, apperr.External(examServiceName, fmt.Errorf("malformed result row for exam registration %s", examRegistrationID))
		}
	}
	return results, nil
}

func (c *examClient) GetGradingScale(ctx context.Context, courseID string) (*models.GradingScale, error) {
	var scale models.GradingScale
	path := fmt.Sprintf("/api/v1/courses/%s/grading-scale", url.PathEscape(courseID))

	err := c.http.do(ctx, http.MethodGet, path, nil, &scale)
	if err == errNotFound {
		return nil, apperr.NotFound("grading scale", courseID)
	}
	if err != nil {
		return nil, apperr.External(examServiceName, err)
	}
	if len(scale.Bands) == 0 {
		return nil, apperr.External(examServiceName, fmt.Errorf("grading scale for course %s has no bands", courseID))
	}
	return &scale, nil
}

// IdempotencyKeyHeader lets the exam service drop a repeated write-back.
const IdempotencyKeyHeader = "Idempotency-Key"

// ResultWriteKey identifies one revaluation write-back. A registration is
// published once, so the key is stable across publish retries.
func ResultWriteKey(write models.ResultWrite) string {
	return "revaluation:" + write.RevaluationRegistrationID + ":" + write.FinalMarksID
}

func (c *examClient) WriteResult(ctx context.Context, write models.ResultWrite) error {
	path := fmt.Sprintf("/api/v1/final-marks/%s/revaluation", url.PathEscape(write.FinalMarksID))
	header := http.Header{}
	header.Set(IdempotencyKeyHeader, ResultWriteKey(write))

	err := c.http.doWithHeader(ctx, http.MethodPut, path, header, write, nil)
	if err == errNotFound {
		return apperr.NotFound("final marks", write.FinalMarksID)
	}
	if err != nil {
		return apperr.External(examServiceName, err)
	}

	c.http.logger.Info().
		Str("final_marks_id", write.FinalMarksID).
		Str("registration_id", write.RevaluationRegistrationID).
		Str("source", write.Source).
		Msg("Result written back")
	return nil
}

func (c *examClient) ListSessions(ctx context.Context, institutionsID string) ([]models.ExaminationSession, error) {
	q := url.Values{}
	q.Set("institutions_id", institutionsID)

	var sessions []models.ExaminationSession
	err := c.http.do(ctx, http.MethodGet, "/api/v1/examination-sessions?"+q.Encode(), nil, &sessions)
	if err == errNotFound {
		return []models.ExaminationSession{}, nil
	}
	if err != nil {
		return nil, apperr.External(examServiceName, err)
	}
	return sessions, nil
}
