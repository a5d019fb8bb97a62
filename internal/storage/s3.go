package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fingerprintMetadata is the user metadata key carrying the dataset
// fingerprint on S3 objects.
const fingerprintMetadata = "fingerprint"

// S3Storage keeps datasets in an S3 bucket or an S3-compatible store.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	maxRetries int
	backoff    time.Duration
}

// S3Config holds the client settings of S3Storage.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint, for MinIO or LocalStack.
	Endpoint     string
	UsePathStyle bool
	// MaxRetries bounds the retries of a failed transfer.
	MaxRetries int
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-east-1", MaxRetries: 3}
}

// NewS3Storage creates a store on bucket. Credentials come from the default
// AWS provider chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	store := NewS3StorageWithClient(client, bucket)
	if cfg.MaxRetries > 0 {
		store.maxRetries = cfg.MaxRetries
	}
	return store, nil
}

// NewS3StorageWithClient creates a store around a configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{
		client:     client,
		bucket:     bucket,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

// Publish implements DatasetStore.
func (s *S3Storage) Publish(ctx context.Context, localPath, key, fingerprint string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return wrapErr(ErrUploadFailed, key, err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/octet-stream"),
	}
	if fingerprint != "" {
		input.Metadata = map[string]string{fingerprintMetadata: fingerprint}
	}

	err = s.withRetry(ctx, func() error {
		if _, err := file.Seek(0, 0); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, input)
		return err
	})
	if err != nil {
		return wrapErr(ErrUploadFailed, key, err)
	}
	return nil
}

// Fetch implements DatasetStore. An interrupted transfer is retried from
// the start.
func (s *S3Storage) Fetch(ctx context.Context, key, localPath string) (ObjectInfo, error) {
	var info ObjectInfo
	err := s.withRetry(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()

		info = ObjectInfo{
			Key:         key,
			Size:        aws.ToInt64(resp.ContentLength),
			Modified:    aws.ToTime(resp.LastModified),
			Fingerprint: resp.Metadata[fingerprintMetadata],
		}
		return writeAtomic(localPath, resp.Body)
	})
	if errors.Is(err, ErrObjectNotFound) {
		return ObjectInfo{}, wrapErr(ErrObjectNotFound, key, nil)
	}
	if err != nil {
		return ObjectInfo{}, wrapErr(ErrDownloadFailed, key, err)
	}
	return info, nil
}

// Stat implements DatasetStore.
func (s *S3Storage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := s.withRetry(ctx, func() error {
		resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var notFound *types.NotFound
			if errors.As(err, &notFound) {
				return ErrObjectNotFound
			}
			return err
		}
		info = ObjectInfo{
			Key:         key,
			Size:        aws.ToInt64(resp.ContentLength),
			Modified:    aws.ToTime(resp.LastModified),
			Fingerprint: resp.Metadata[fingerprintMetadata],
		}
		return nil
	})
	if errors.Is(err, ErrObjectNotFound) {
		return ObjectInfo{}, wrapErr(ErrObjectNotFound, key, nil)
	}
	if err != nil {
		return ObjectInfo{}, wrapErr(ErrDownloadFailed, key, err)
	}
	return info, nil
}

// List implements DatasetStore. Listings carry no user metadata, so the
// returned objects have no fingerprint; Stat fetches it.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:      aws.ToString(obj.Key),
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// withRetry runs op with exponential backoff. Missing objects are not
// retried.
func (s *S3Storage) withRetry(ctx context.Context, op func() error) error {
	var err error
	delay := s.backoff
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(); err == nil || errors.Is(err, ErrObjectNotFound) {
			return err
		}
		if attempt == s.maxRetries {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
