// Package objectstore uploads and downloads single objects in S3-compatible
// blob storage using short-lived, object-scoped credentials issued by the
// forms API.
package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/formsync/pkg/forms"
)

// ObjectAPI is the subset of the S3 client used here. *s3.Client
// satisfies it; tests substitute a fake.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientFactory builds a client for one set of credentials. A new client
// is built for every attempt because credentials are single-use.
type ClientFactory func(ctx context.Context, creds forms.UploadCredentials) (ObjectAPI, error)

// ClientConfig configures S3 client construction.
type ClientConfig struct {
	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// ForcePathStyle forces path-style addressing (required for MinIO/Localstack).
	ForcePathStyle bool
}

// NewS3ClientFactory returns a factory producing real S3 clients.
func NewS3ClientFactory(cfg ClientConfig) ClientFactory {
	return func(ctx context.Context, creds forms.UploadCredentials) (ObjectAPI, error) {
		tmp := creds.Credentials
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				tmp.AccessKeyID, tmp.SecretAccessKey, tmp.SessionToken,
			)),
		}
		if creds.S3.Region != "" {
			opts = append(opts, awsconfig.WithRegion(creds.S3.Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
			// Retries happen per whole object in Uploader.
			o.RetryMaxAttempts = 1
		}), nil
	}
}
