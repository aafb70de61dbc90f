package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/metrics"
)

// ClientConfig holds the connection settings shared by collaborator clients.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

var errNotFound = errors.New("resource not found")

// jsonClient performs JSON requests against one collaborating service with a
// linear back-off retry loop. 4xx answers other than 404 are not retried.
type jsonClient struct {
	service    string
	baseURL    string
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func newJSONClient(service string, cfg ClientConfig, m *metrics.Metrics, logger zerolog.Logger) *jsonClient {
	return &jsonClient{
		service:    service,
		baseURL:    cfg.BaseURL,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		metrics: m,
		logger:  logger.With().Str("service", service).Logger(),
	}
}

// do sends the request and decodes a 2xx body into out. It returns
// errNotFound on 404 and a plain error for anything else that fails.
func (c *jsonClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	return c.doWithHeader(ctx, method, path, nil, payload, out)
}

// doWithHeader is do with extra request headers, sent on every attempt.
func (c *jsonClient) doWithHeader(ctx context.Context, method, path string, header http.Header, payload, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		if err == errNotFound {
			c.metrics.ObserveCall(c.service, start, nil)
			return
		}
		c.metrics.ObserveCall(c.service, start, err)
	}()

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	url := c.baseURL + path
	var lastErr error

	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Str("path", path).Err(lastErr).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		for key, values := range header {
			req.Header[key] = values
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			err = decodeBody(resp.Body, out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return errNotFound
		}
		lastErr = fmt.Errorf("%s returned status %d: %s", c.service, resp.StatusCode, string(respBody))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return lastErr
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, c.retryCount+1, lastErr)
}

func decodeBody(r io.Reader, out interface{}) error {
	if out == nil {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	return json.NewDecoder(r).Decode(out)
}
