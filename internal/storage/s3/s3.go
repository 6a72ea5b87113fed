// Package s3 stores pod objects in an S3 bucket, one object per pod path.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/podfs/podfs-go/internal/storage/types"
)

// Options configures the S3 backend
type Options struct {
	Bucket   string
	Region   string
	Endpoint string // Custom endpoint, e.g. LocalStack

	// Static credentials; when empty the default AWS chain is used
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Backend implements types.Backend on top of S3
type Backend struct {
	bucket string
	client *awss3.Client
}

var _ types.Backend = (*Backend)(nil)

// NewBackend creates an S3 backend
func NewBackend(opts Options) (*Backend, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	cfgOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		cfgOptions = append(cfgOptions, config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			opts.SessionToken,
		)))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), cfgOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*awss3.Options){}
	if opts.Endpoint != "" {
		s3Options = append(s3Options, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true // Required for LocalStack
		})
	}

	return &Backend{
		bucket: opts.Bucket,
		client: awss3.NewFromConfig(cfg, s3Options...),
	}, nil
}

// CreateBucket creates the configured bucket
func (b *Backend) CreateBucket(ctx context.Context) error {
	_, err := b.client.CreateBucket(ctx, &awss3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Read downloads an object
func (b *Backend) Read(ctx context.Context, path string) (*types.Object, error) {
	result, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	return &types.Object{
		Path:        path,
		Data:        data,
		ContentType: aws.ToString(result.ContentType),
		Mtime:       aws.ToTime(result.LastModified),
	}, nil
}

// Write uploads an object
func (b *Backend) Write(ctx context.Context, path string, data []byte, contentType string) error {
	input := &awss3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Delete removes an object. S3 deletes succeed for missing keys, so
// existence is checked first.
func (b *Backend) Delete(ctx context.Context, path string) error {
	ok, err := b.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}

	_, err = b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List lists keys with the given prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := awss3.NewListObjectsV2Paginator(b.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	keys := make([]string, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// Exists checks an object with HeadObject
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

// Close is a no-op for S3
func (b *Backend) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
