package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used for staging.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config contains configuration for S3 staging.
type S3Config struct {
	Bucket   string
	Prefix   string // e.g. "uploads/"
	Region   string
	Profile  string // shared config profile, optional
	MaxBytes int64
}

// S3 stages files as objects in a bucket. Uploads are buffered in memory,
// so MaxBytes should stay small.
type S3 struct {
	client   S3API
	bucket   string
	prefix   string
	maxBytes int64
	now      func() time.Time
}

// NewS3 loads the default AWS configuration and returns an S3 stager.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	slog.Info("staging: using S3", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "region", cfg.Region)
	return NewS3WithClient(s3.NewFromConfig(awsCfg), cfg), nil
}

// NewS3WithClient returns an S3 stager over an existing client.
func NewS3WithClient(client S3API, cfg S3Config) *S3 {
	prefix := strings.TrimPrefix(cfg.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix, maxBytes: cfg.MaxBytes, now: time.Now}
}

// Stage implements Stager.
func (s *S3) Stage(ctx context.Context, fileName string, r io.Reader) (Staged, error) {
	data, err := readLimited(r, s.maxBytes)
	if err != nil {
		return Staged{}, err
	}

	key := s.prefix + objectName(fileName, s.now())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("text/csv"),
		Metadata: map[string]string{
			"original-name": fileName,
		},
	})
	if err != nil {
		return Staged{}, fmt.Errorf("failed to upload staged file: %w", err)
	}

	return Staged{Ref: s.ref(key), FileName: fileName, Size: int64(len(data))}, nil
}

// Open implements Stager.
func (s *S3) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := s.key(ref)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download staged file: %w", err)
	}
	return out.Body, nil
}

// Remove implements Stager.
func (s *S3) Remove(ctx context.Context, ref string) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var nsk *types.NoSuchKey
	if err != nil && !errors.As(err, &nsk) {
		return fmt.Errorf("failed to delete staged file: %w", err)
	}
	return nil
}

func (s *S3) ref(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *S3) key(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, "s3://"+s.bucket+"/")
	if !ok || rest == "" || !strings.HasPrefix(rest, s.prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignRef, ref)
	}
	return rest, nil
}
