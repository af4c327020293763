package envelope

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3-compatible backend for artifact storage.
type S3Config struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // custom endpoint for MinIO/other S3-compatible services
	Region    string
	PathStyle bool
}

// S3ArtifactStore implements ArtifactStore over S3-compatible object
// storage, adapted from the teacher's generic upload service down to
// the single put/get shape a manifest's artifacts and replay bundles
// need — no MIME sniffing or ACL handling, since artifact refs are
// never served directly to end users.
type S3ArtifactStore struct {
	client *s3.Client
	bucket string
}

// NewS3ArtifactStore builds an S3ArtifactStore from cfg.
func NewS3ArtifactStore(cfg S3Config) (*S3ArtifactStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("envelope: S3Config.Bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = region
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		},
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return &S3ArtifactStore{client: s3.New(s3.Options{}, opts...), bucket: cfg.Bucket}, nil
}

// Put uploads r under key, returning an s3:// ref for the manifest to
// store.
func (a *S3ArtifactStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("envelope: s3 put failed: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// Get fetches the object a ref (as returned by Put) points to.
func (a *S3ArtifactStore) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := refKey(a.bucket, ref)
	if err != nil {
		return nil, err
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("envelope: s3 get failed: %w", err)
	}
	return out.Body, nil
}

func refKey(bucket, ref string) (string, error) {
	prefix := "s3://" + bucket + "/"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", fmt.Errorf("envelope: ref %q does not belong to bucket %q", ref, bucket)
	}
	return ref[len(prefix):], nil
}
