package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible store such as DigitalOcean Spaces.
type S3Options struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Insecure      bool
	PublicBaseURL string
}

// S3Store uploads objects with a public-read ACL.
type S3Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewS3Store creates the client. No request is made until the first Put.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	baseURL := opts.PublicBaseURL
	if baseURL == "" {
		scheme := "https"
		if opts.Insecure {
			scheme = "http"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &S3Store{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

// Put uploads body and returns <endpoint>/<bucket>/<key>.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return joinURL(s.baseURL, key), nil
}

// Close is a no-op; the client holds no persistent connection.
func (s *S3Store) Close() error { return nil }
