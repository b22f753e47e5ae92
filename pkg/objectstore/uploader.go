package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/metrics"
)

const (
	// DefaultPartSize is the multipart threshold and part size.
	DefaultPartSize = 5 * 1024 * 1024

	// MaxAttempts is the number of whole-object attempts per upload.
	MaxAttempts = 3

	cacheControl = "max-age=31536000"
)

// Progress is delivered to UploadInput.OnProgress.
type Progress struct {
	Progress int `json:"progress"`
	Total    int `json:"total"`
}

// UploadInput describes one object upload.
type UploadInput struct {
	Credentials forms.UploadCredentials
	Body        []byte
	ContentType string
	Tags        map[string]string
	OnProgress  func(Progress)
}

// PartConcurrency returns how many parts are uploaded in parallel on a
// given network class. Constrained links time out with more parallelism.
func PartConcurrency(class environment.NetworkClass) int {
	switch class {
	case environment.Network4G:
		return 10
	case environment.Network3G:
		return 2
	default:
		return 1
	}
}

// Uploader performs retried, cancellable uploads.
type Uploader struct {
	factory  ClientFactory
	probe    environment.Probe
	metrics  metrics.UploadMetrics
	partSize int
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithPartSize sets the multipart threshold and part size in bytes.
func WithPartSize(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.partSize = n
		}
	}
}

// WithUploadMetrics enables metrics recording. nil disables it.
func WithUploadMetrics(m metrics.UploadMetrics) UploaderOption {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// NewUploader creates an Uploader. probe may be nil, in which case the
// network class is treated as unknown.
func NewUploader(factory ClientFactory, probe environment.Probe, opts ...UploaderOption) *Uploader {
	u := &Uploader{factory: factory, probe: probe, partSize: DefaultPartSize}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload stores the body at the location named by the credentials.
//
// The whole object is retried up to MaxAttempts times with no delay.
// Cancelling ctx stops immediately with an error matching
// apperror.ErrAborted; the remote object is then in an unknown state.
// After the last failed attempt a connectivity error is returned.
func (u *Uploader) Upload(ctx context.Context, in UploadInput) error {
	loc := in.Credentials.S3
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanUpload,
		telemetry.Bucket(loc.Bucket), telemetry.StorageKey(loc.Key), telemetry.Size(len(in.Body)))
	defer span.End()

	class := environment.NetworkUnknown
	if u.probe != nil {
		class = u.probe.NetworkClass(ctx)
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return u.finish(in, attempts, apperror.Aborted(err))
		}
		attempts = attempt

		start := time.Now()
		err := u.attempt(ctx, in, class)
		if u.metrics != nil {
			u.metrics.ObserveAttempt(time.Since(start), err)
		}
		if err == nil {
			logger.DebugCtx(ctx, "Upload completed",
				logger.KeyObjectBucket, loc.Bucket,
				logger.KeyObjectKey, loc.Key,
				logger.KeySize, len(in.Body),
				logger.KeyAttempt, attempt)
			return u.finish(in, attempts, nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return u.finish(in, attempts, apperror.Aborted(ctxErr))
		}

		lastErr = err
		logger.DebugCtx(ctx, "Upload attempt failed",
			logger.KeyObjectBucket, loc.Bucket,
			logger.KeyObjectKey, loc.Key,
			logger.KeyAttempt, attempt,
			logger.KeyMaxAttempts, MaxAttempts,
			logger.Err(err))
	}

	err := apperror.Connectivity(apperror.MsgRetries, lastErr)
	telemetry.RecordError(ctx, err)
	logger.WarnCtx(ctx, "Upload failed after retries",
		logger.KeyObjectBucket, loc.Bucket,
		logger.KeyObjectKey, loc.Key,
		logger.KeyMaxAttempts, MaxAttempts,
		logger.Err(lastErr))
	return u.finish(in, attempts, err)
}

func (u *Uploader) finish(in UploadInput, attempts int, err error) error {
	if u.metrics != nil {
		u.metrics.ObserveUpload(len(in.Body), attempts, err)
	}
	return err
}

func (u *Uploader) attempt(ctx context.Context, in UploadInput, class environment.NetworkClass) error {
	client, err := u.factory(ctx, in.Credentials)
	if err != nil {
		return err
	}
	if len(in.Body) < u.partSize {
		return u.putObject(ctx, client, in)
	}
	return u.multipart(ctx, client, in, PartConcurrency(class))
}

func (u *Uploader) putObject(ctx context.Context, client ObjectAPI, in UploadInput) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(in.Credentials.S3.Bucket),
		Key:                  aws.String(in.Credentials.S3.Key),
		Body:                 bytes.NewReader(in.Body),
		ContentType:          optional(in.ContentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		CacheControl:         aws.String(cacheControl),
		ACL:                  types.ObjectCannedACLBucketOwnerFullControl,
		Tagging:              encodeTags(in.Tags),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	report(in.OnProgress, len(in.Body), len(in.Body))
	return nil
}

func (u *Uploader) multipart(ctx context.Context, client ObjectAPI, in UploadInput, concurrency int) error {
	bucket := aws.String(in.Credentials.S3.Bucket)
	key := aws.String(in.Credentials.S3.Key)

	created, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:               bucket,
		Key:                  key,
		ContentType:          optional(in.ContentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		CacheControl:         aws.String(cacheControl),
		ACL:                  types.ObjectCannedACLBucketOwnerFullControl,
		Tagging:              encodeTags(in.Tags),
	})
	if err != nil {
		return fmt.Errorf("s3 create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	total := len(in.Body)
	numParts := (total + u.partSize - 1) / u.partSize

	var (
		mu        sync.Mutex
		completed = make([]types.CompletedPart, 0, numParts)
		sent      int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < numParts; i++ {
		partNumber := int32(i + 1)
		start := i * u.partSize
		end := min(start+u.partSize, total)

		g.Go(func() error {
			out, err := client.UploadPart(gctx, &s3.UploadPartInput{
				Bucket:     bucket,
				Key:        key,
				UploadId:   uploadID,
				PartNumber: aws.Int32(partNumber),
				Body:       bytes.NewReader(in.Body[start:end]),
			})
			if err != nil {
				return fmt.Errorf("s3 upload part %d: %w", partNumber, err)
			}

			mu.Lock()
			defer mu.Unlock()
			completed = append(completed, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
			sent += end - start
			report(in.OnProgress, sent, total)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		u.abort(ctx, client, bucket, key, uploadID)
		return err
	}

	sort.Slice(completed, func(i, j int) bool {
		return *completed[i].PartNumber < *completed[j].PartNumber
	})

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          bucket,
		Key:             key,
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		u.abort(ctx, client, bucket, key, uploadID)
		return fmt.Errorf("s3 complete multipart upload: %w", err)
	}
	return nil
}

// abort releases the parts of a failed multipart upload. It runs even when
// ctx was cancelled so storage is not left holding orphaned parts.
func (u *Uploader) abort(ctx context.Context, client ObjectAPI, bucket, key, uploadID *string) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, err := client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
		Bucket:   bucket,
		Key:      key,
		UploadId: uploadID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("Failed to abort multipart upload",
			logger.KeyObjectBucket, aws.ToString(bucket),
			logger.KeyObjectKey, aws.ToString(key),
			logger.Err(err))
	}
}

func report(fn func(Progress), sent, total int) {
	if fn == nil {
		return
	}
	p := 100
	if total > 0 {
		p = sent * 100 / total
	}
	fn(Progress{Progress: p, Total: 100})
}

func encodeTags(tags map[string]string) *string {
	if len(tags) == 0 {
		return nil
	}
	v := url.Values{}
	for k, val := range tags {
		v.Set(k, val)
	}
	return aws.String(v.Encode())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
