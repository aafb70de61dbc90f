package integration

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/apperr"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
)

// ReceiptStorage keeps payment receipt files in object storage.
type ReceiptStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool
	ConnectTimeout  time.Duration
}

type minioReceiptStorage struct {
	client  *minio.Client
	bucket  string
	region  string
	metrics *metrics.Metrics
	logger  zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIOReceiptStorage(cfg StorageConfig, m *metrics.Metrics, logger zerolog.Logger) (ReceiptStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &minioReceiptStorage{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		metrics: m,
		logger:  logger,
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureBucket(ctx); err != nil {
		// receipts are optional for the workflow, keep serving and retry on demand
		logger.Error().Err(err).
			Str("endpoint", cfg.Endpoint).
			Str("bucket", cfg.Bucket).
			Msg("MinIO not ready during startup")
	} else {
		logger.Info().
			Str("endpoint", cfg.Endpoint).
			Str("bucket", cfg.Bucket).
			Bool("ssl", cfg.UseSSL).
			Msg("Connected to MinIO")
	}

	return s, nil
}

func (s *minioReceiptStorage) ensureBucket(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.bucketEnsured {
		return nil
	}

	backoff := 500 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("minio not ready: %w", err)
		}

		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			time.Sleep(backoff)
			continue
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				time.Sleep(backoff)
				continue
			}
			s.logger.Info().Str("bucket", s.bucket).Msg("Created new bucket")
		}

		s.bucketEnsured = true
		return nil
	}
}

func (s *minioReceiptStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveCall("storage", start, err) }()

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.ensureBucket(ensureCtx); err != nil {
		return apperr.External("receipt storage", err)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return apperr.External("receipt storage", fmt.Errorf("failed to upload receipt: %w", err))
	}

	s.logger.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Str("etag", info.ETag).
		Int64("size", info.Size).
		Msg("Receipt uploaded")
	return nil
}

func (s *minioReceiptStorage) PresignedURL(ctx context.Context, key string, expiry time.Duration) (u string, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveCall("storage", start, err) }()

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", apperr.NotFound("receipt", key)
		}
		return "", apperr.External("receipt storage", fmt.Errorf("failed to stat receipt: %w", err))
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", apperr.External("receipt storage", fmt.Errorf("failed to presign receipt: %w", err))
	}
	return presigned.String(), nil
}
