// Package storage publishes finished run reports to S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/config"
	"github.com/testforge/portalsuite/internal/domain"
)

// presignExpiry bounds links handed out by ReportURL
const presignExpiry = 24 * time.Hour

// ReportStore uploads report files to a bucket under <prefix>/<run id>/
type ReportStore struct {
	client     *minio.Client
	bucketName string
	prefix     string
	logger     *zap.Logger
}

// NewReportStore creates a new MinIO-backed store
func NewReportStore(cfg config.StorageConfig, logger *zap.Logger) (*ReportStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &ReportStore{
		client:     client,
		bucketName: cfg.Bucket,
		prefix:     strings.Trim(cfg.ReportPath, "/"),
		logger:     logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *ReportStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}

	return nil
}

// ObjectKey returns the key a run file is stored under
func (s *ReportStore) ObjectKey(runID, name string) string {
	return path.Join(s.prefix, runID, name)
}

// Publish uploads the given files of a run and returns their S3 URIs.
// Files that do not exist are skipped; the first upload error stops.
func (s *ReportStore) Publish(ctx context.Context, run *domain.Run, files []string) ([]string, error) {
	var uris []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return uris, domain.ErrArtifactIOFailed(f, err)
		}

		key := s.ObjectKey(run.ID, filepath.Base(f))
		uri, err := s.upload(ctx, key, data, ContentType(f))
		if err != nil {
			return uris, err
		}
		s.logger.Info("Published report file", zap.String("uri", uri), zap.Int("bytes", len(data)))
		uris = append(uris, uri)
	}
	return uris, nil
}

func (s *ReportStore) upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	reader := bytes.NewReader(data)

	_, err := s.client.PutObject(ctx, s.bucketName, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucketName, key), nil
}

// ReportURL returns a presigned download URL of a run's HTML report
func (s *ReportStore) ReportURL(ctx context.Context, runID string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, s.ObjectKey(runID, domain.ReportFileName), presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("generating presigned URL: %w", err)
	}
	return u.String(), nil
}

// Keys lists the stored objects of a run
func (s *ReportStore) Keys(ctx context.Context, runID string) ([]string, error) {
	var keys []string

	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    s.ObjectKey(runID, "") + "/",
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, object.Err
		}
		keys = append(keys, object.Key)
	}

	return keys, nil
}

// ContentType picks the upload content type from a file name
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
