// Package objectstoretest provides an in-memory S3 fake for tests.
package objectstoretest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/objectstore"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// Object is a stored object plus the headers it was written with.
type Object struct {
	Body                 []byte
	ContentType          string
	CacheControl         string
	Tagging              string
	ServerSideEncryption types.ServerSideEncryption
	ACL                  types.ObjectCannedACL
}

// Fake is a concurrency-safe in-memory ObjectAPI.
type Fake struct {
	mu        sync.Mutex
	objects   map[string]Object
	multipart map[string]*pendingUpload
	nextID    int

	// FailWrites makes the next n write attempts (PutObject or
	// CreateMultipartUpload) fail. Negative fails forever.
	FailWrites int

	// FailPart makes UploadPart fail for this part number.
	FailPart int32

	// WriteHook, when set, runs at the start of every write attempt.
	WriteHook func(ctx context.Context) error

	Puts      int
	Creates   int
	Parts     int
	Completes int
	Aborts    int
	Gets      int
	Factories int
}

type pendingUpload struct {
	key   string
	meta  Object
	parts map[int32][]byte
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{objects: make(map[string]Object), multipart: make(map[string]*pendingUpload)}
}

// Factory returns a ClientFactory handing out this fake.
func (f *Fake) Factory() objectstore.ClientFactory {
	return func(context.Context, forms.UploadCredentials) (objectstore.ObjectAPI, error) {
		f.mu.Lock()
		f.Factories++
		f.mu.Unlock()
		return f, nil
	}
}

// Object returns a stored object.
func (f *Fake) Object(bucket, key string) (Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[bucket+"/"+key]
	return o, ok
}

// Put stores an object directly.
func (f *Fake) Put(bucket, key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = Object{Body: append([]byte(nil), body...)}
}

// WriteAttempts returns the number of PutObject plus CreateMultipartUpload calls.
func (f *Fake) WriteAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Puts + f.Creates
}

func (f *Fake) failWrite(ctx context.Context) error {
	if f.WriteHook != nil {
		if err := f.WriteHook(ctx); err != nil {
			return err
		}
	}
	if f.FailWrites != 0 {
		if f.FailWrites > 0 {
			f.FailWrites--
		}
		return ErrInjected
	}
	return nil
}

func (f *Fake) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Puts++
	if err := f.failWrite(ctx); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = Object{
		Body:                 body,
		ContentType:          aws.ToString(in.ContentType),
		CacheControl:         aws.ToString(in.CacheControl),
		Tagging:              aws.ToString(in.Tagging),
		ServerSideEncryption: in.ServerSideEncryption,
		ACL:                  in.ACL,
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *Fake) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates++
	if err := f.failWrite(ctx); err != nil {
		return nil, err
	}
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.multipart[id] = &pendingUpload{
		key: aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key),
		meta: Object{
			ContentType:          aws.ToString(in.ContentType),
			CacheControl:         aws.ToString(in.CacheControl),
			Tagging:              aws.ToString(in.Tagging),
			ServerSideEncryption: in.ServerSideEncryption,
			ACL:                  in.ACL,
		},
		parts: make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *Fake) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Parts++
	n := aws.ToInt32(in.PartNumber)
	if f.FailPart != 0 && f.FailPart == n {
		return nil, ErrInjected
	}
	up, ok := f.multipart[aws.ToString(in.UploadId)]
	if !ok {
		return nil, errors.New("no such upload")
	}
	up.parts[n] = body
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", n))}, nil
}

func (f *Fake) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Completes++
	id := aws.ToString(in.UploadId)
	up, ok := f.multipart[id]
	if !ok {
		return nil, errors.New("no such upload")
	}

	numbers := make([]int32, 0, len(in.MultipartUpload.Parts))
	for _, p := range in.MultipartUpload.Parts {
		numbers = append(numbers, aws.ToInt32(p.PartNumber))
	}
	if !sort.SliceIsSorted(numbers, func(i, j int) bool { return numbers[i] < numbers[j] }) {
		return nil, errors.New("parts must be in ascending order")
	}

	var buf bytes.Buffer
	for _, n := range numbers {
		buf.Write(up.parts[n])
	}
	obj := up.meta
	obj.Body = buf.Bytes()
	f.objects[up.key] = obj
	delete(f.multipart, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *Fake) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Aborts++
	delete(f.multipart, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *Fake) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	o, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.Body))}, nil
}
