package objectstore_test

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/objectstore"
	"github.com/marmos91/formsync/pkg/objectstore/objectstoretest"
)

func creds() forms.UploadCredentials {
	return forms.UploadCredentials{
		S3: forms.S3Location{Bucket: "submissions", Key: "forms/1/submissions/abc", Region: "ap-southeast-2"},
		Credentials: forms.TemporaryCredentials{
			AccessKeyID: "AKIA", SecretAccessKey: "secret", SessionToken: "token",
		},
	}
}

func TestUploadSmallObject(t *testing.T) {
	fake := objectstoretest.New()
	u := objectstore.NewUploader(fake.Factory(), environment.NewStatic(false, environment.Network4G))

	var progress []objectstore.Progress
	err := u.Upload(context.Background(), objectstore.UploadInput{
		Credentials: creds(),
		Body:        []byte(`{"submission":{}}`),
		ContentType: "application/json",
		Tags:        map[string]string{"PrivateS3ObjectKey": "true", "formId": "1"},
		OnProgress:  func(p objectstore.Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	obj, ok := fake.Object("submissions", "forms/1/submissions/abc")
	require.True(t, ok)
	assert.Equal(t, `{"submission":{}}`, string(obj.Body))
	assert.Equal(t, "application/json", obj.ContentType)
	assert.Equal(t, "max-age=31536000", obj.CacheControl)
	assert.Equal(t, types.ServerSideEncryptionAes256, obj.ServerSideEncryption)
	assert.Equal(t, types.ObjectCannedACLBucketOwnerFullControl, obj.ACL)

	tags, err := url.ParseQuery(obj.Tagging)
	require.NoError(t, err)
	assert.Equal(t, "true", tags.Get("PrivateS3ObjectKey"))
	assert.Equal(t, "1", tags.Get("formId"))

	assert.Equal(t, []objectstore.Progress{{Progress: 100, Total: 100}}, progress)
}

func TestUploadRetriesThenSucceeds(t *testing.T) {
	fake := objectstoretest.New()
	fake.FailWrites = 2
	u := objectstore.NewUploader(fake.Factory(), nil)

	err := u.Upload(context.Background(), objectstore.UploadInput{Credentials: creds(), Body: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.WriteAttempts())
	assert.Equal(t, 3, fake.Factories, "credentials client is rebuilt per attempt")
}

func TestUploadAlwaysFailingStopsAfterThreeAttempts(t *testing.T) {
	fake := objectstoretest.New()
	fake.FailWrites = -1
	u := objectstore.NewUploader(fake.Factory(), nil)

	err := u.Upload(context.Background(), objectstore.UploadInput{Credentials: creds(), Body: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, objectstore.MaxAttempts, fake.WriteAttempts())
	assert.Equal(t, apperror.KindConnectivity, apperror.KindOf(err))
	assert.ErrorIs(t, err, objectstoretest.ErrInjected)
}

func TestUploadCancelledBeforeStart(t *testing.T) {
	fake := objectstoretest.New()
	u := objectstore.NewUploader(fake.Factory(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := u.Upload(ctx, objectstore.UploadInput{Credentials: creds(), Body: []byte("x")})
	assert.ErrorIs(t, err, apperror.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.WriteAttempts())
}

func TestUploadCancelDuringAttemptStopsRetries(t *testing.T) {
	fake := objectstoretest.New()
	ctx, cancel := context.WithCancel(context.Background())
	fake.WriteHook = func(context.Context) error {
		cancel()
		return errors.New("connection reset")
	}
	u := objectstore.NewUploader(fake.Factory(), nil)

	err := u.Upload(ctx, objectstore.UploadInput{Credentials: creds(), Body: []byte("x")})
	assert.ErrorIs(t, err, apperror.ErrAborted)
	assert.Equal(t, 1, fake.WriteAttempts())
}

func TestUploadMultipart(t *testing.T) {
	fake := objectstoretest.New()
	u := objectstore.NewUploader(fake.Factory(), environment.NewStatic(false, environment.Network3G),
		objectstore.WithPartSize(10))

	body := bytes.Repeat([]byte("0123456789"), 4)
	body = append(body, []byte("tail")...)

	var mu sync.Mutex
	var progress []int
	err := u.Upload(context.Background(), objectstore.UploadInput{
		Credentials: creds(),
		Body:        body,
		Tags:        map[string]string{"k": "v w"},
		OnProgress: func(p objectstore.Progress) {
			mu.Lock()
			progress = append(progress, p.Progress)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	obj, ok := fake.Object("submissions", "forms/1/submissions/abc")
	require.True(t, ok)
	assert.Equal(t, body, obj.Body)
	assert.Equal(t, "k=v+w", obj.Tagging)
	assert.Equal(t, types.ServerSideEncryptionAes256, obj.ServerSideEncryption)
	assert.Equal(t, 5, fake.Parts)
	assert.Equal(t, 1, fake.Completes)

	require.Len(t, progress, 5)
	assert.IsIncreasing(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestUploadMultipartPartFailureAbortsAndRetries(t *testing.T) {
	fake := objectstoretest.New()
	fake.FailPart = 2
	u := objectstore.NewUploader(fake.Factory(), nil, objectstore.WithPartSize(4))

	err := u.Upload(context.Background(), objectstore.UploadInput{Credentials: creds(), Body: []byte("aaaabbbbcccc")})
	require.Error(t, err)
	assert.Equal(t, 3, fake.Creates)
	assert.Equal(t, 3, fake.Aborts)
	assert.Zero(t, fake.Completes)
}

func TestPartConcurrency(t *testing.T) {
	assert.Equal(t, 1, objectstore.PartConcurrency(environment.NetworkSlow2G))
	assert.Equal(t, 1, objectstore.PartConcurrency(environment.Network2G))
	assert.Equal(t, 2, objectstore.PartConcurrency(environment.Network3G))
	assert.Equal(t, 10, objectstore.PartConcurrency(environment.Network4G))
	assert.Equal(t, 1, objectstore.PartConcurrency(environment.NetworkUnknown))
}

func TestDownload(t *testing.T) {
	fake := objectstoretest.New()
	c := creds()
	fake.Put(c.S3.Bucket, c.S3.Key, []byte(`{"a":1}`))

	d := objectstore.NewDownloader(fake.Factory(), nil)
	data, err := d.Download(context.Background(), c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	c.S3.Key = "missing"
	_, err = d.Download(context.Background(), c)
	require.Error(t, err)
	var appErr *apperror.Error
	assert.ErrorAs(t, err, &appErr)
}
