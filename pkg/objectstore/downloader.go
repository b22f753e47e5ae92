package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/metrics"
)

// Downloader reads single objects with retrieval credentials.
type Downloader struct {
	factory ClientFactory
	metrics metrics.UploadMetrics
}

// NewDownloader creates a Downloader. m may be nil.
func NewDownloader(factory ClientFactory, m metrics.UploadMetrics) *Downloader {
	return &Downloader{factory: factory, metrics: m}
}

// Download returns the object body. Failures are normalized to
// application errors.
func (d *Downloader) Download(ctx context.Context, creds forms.UploadCredentials) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDownload,
		telemetry.Bucket(creds.S3.Bucket), telemetry.StorageKey(creds.S3.Key))
	defer span.End()

	start := time.Now()
	data, err := d.download(ctx, creds)
	if d.metrics != nil {
		d.metrics.ObserveDownload(len(data), time.Since(start), err)
	}
	if err != nil {
		appErr := apperror.Normalize(err)
		logger.DebugCtx(ctx, "Download failed",
			logger.KeyObjectBucket, creds.S3.Bucket,
			logger.KeyObjectKey, creds.S3.Key,
			logger.KeyErrorKind, string(appErr.Kind),
			logger.Err(err))
		return nil, appErr
	}
	return data, nil
}

func (d *Downloader) download(ctx context.Context, creds forms.UploadCredentials) ([]byte, error) {
	client, err := d.factory(ctx, creds)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(creds.S3.Bucket),
		Key:    aws.String(creds.S3.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body: %w", err)
	}
	return data, nil
}
