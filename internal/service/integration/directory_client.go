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

type FeeClient interface {
	GetFeeConfig(ctx context.Context, institutionsID string) (*models.FeeConfig, error)
}

type feeClient struct {
	http *jsonClient
}

func NewFeeClient(cfg ClientConfig, m *metrics.Metrics, logger zerolog.Logger) FeeClient {
	return &feeClient{http: newJSONClient("fees", cfg, m, logger)}
}

// GetFeeConfig never falls back to a zero fee: a missing or malformed
// configuration is an error.
func (c *feeClient) GetFeeConfig(ctx context.Context, institutionsID string) (*models.FeeConfig, error) {
	var cfg models.FeeConfig
	path := fmt.Sprintf("/api/v1/revaluation-fees/%s", url.PathEscape(institutionsID))

	err := c.http.do(ctx, http.MethodGet, path, nil, &cfg)
	if err == errNotFound {
		return nil, apperr.NotFound("fee configuration", institutionsID)
	}
	if err != nil {
		return nil, apperr.External("fee service", err)
	}
	if cfg.FeePerCourse <= 0 {
		return nil, apperr.External("fee service", fmt.Errorf("invalid fee per course %.2f", cfg.FeePerCourse))
	}
	return &cfg, nil
}

type ExaminerClient interface {
	ListActive(ctx context.Context, institutionsID string) ([]models.Examiner, error)
	Get(ctx context.Context, examinerID string) (*models.Examiner, error)
}

type examinerClient struct {
	http *jsonClient
}

func NewExaminerClient(cfg ClientConfig, m *metrics.Metrics, logger zerolog.Logger) ExaminerClient {
	return &examinerClient{http: newJSONClient("examiners", cfg, m, logger)}
}

func (c *examinerClient) ListActive(ctx context.Context, institutionsID string) ([]models.Examiner, error) {
	q := url.Values{}
	q.Set("institutions_id", institutionsID)
	q.Set("is_active", "true")

	var examiners []models.Examiner
	err := c.http.do(ctx, http.MethodGet, "/api/v1/examiners?"+q.Encode(), nil, &examiners)
	if err == errNotFound {
		return []models.Examiner{}, nil
	}
	if err != nil {
		return nil, apperr.External("examiner directory", err)
	}
	return examiners, nil
}

func (c *examinerClient) Get(ctx context.Context, examinerID string) (*models.Examiner, error) {
	var examiner models.Examiner
	path := fmt.Sprintf("/api/v1/examiners/%s", url.PathEscape(examinerID))

	err := c.http.do(ctx, http.MethodGet, path, nil, &examiner)
	if err == errNotFound {
		return nil, apperr.NotFound("examiner", examinerID)
	}
	if err != nil {
		return nil, apperr.External("examiner directory", err)
	}
	return &examiner, nil
}
