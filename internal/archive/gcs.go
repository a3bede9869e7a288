package archive

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
)

// Uploader copies a local file into object storage and returns its URI
type Uploader interface {
	Upload(ctx context.Context, localPath, objectName string) (string, error)
}

// GCSUploader uploads recordings to a Google Cloud Storage bucket
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGCSUploader creates a storage client for bucket. credentialsB64 is a
// base64-encoded service account JSON document; when empty, application
// default credentials are used.
func NewGCSUploader(ctx context.Context, bucket, credentialsB64 string, logger *slog.Logger, m *metrics.Metrics) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	var opts []option.ClientOption
	if credentialsB64 != "" {
		credentials, err := base64.StdEncoding.DecodeString(credentialsB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &GCSUploader{
		client:  client,
		bucket:  bucket,
		logger:  logger.With(slog.String("component", "gcs")),
		metrics: m,
	}, nil
}

// Upload copies localPath to objectName and returns gs://bucket/objectName
func (u *GCSUploader) Upload(ctx context.Context, localPath, objectName string) (string, error) {
	uri, err := u.upload(ctx, localPath, objectName)
	u.metrics.RecordArchiveUpload(err == nil)
	if err != nil {
		return "", err
	}

	u.logger.Info("Uploaded audio file", slog.String("uri", uri))
	return uri, nil
}

func (u *GCSUploader) upload(ctx context.Context, localPath, objectName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "audio/wav"

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", objectName, err)
	}

	return fmt.Sprintf("gs://%s/%s", u.bucket, objectName), nil
}

// Close releases the storage client
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
