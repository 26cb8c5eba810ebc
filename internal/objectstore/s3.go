package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/config"
)

// maxObjectSize bounds documents read into memory for attachments.
const maxObjectSize = 20 << 20

type S3Store struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

// New returns an S3 store when a bucket is configured and an empty
// MemoryStore otherwise.
func New(cfg config.Config, log *zap.Logger) (Store, error) {
	if strings.TrimSpace(cfg.S3.Bucket) == "" {
		log.Warn("s3 bucket not configured, legal documents will be skipped")
		return NewMemoryStore(), nil
	}
	return NewS3Store(context.Background(), cfg.S3, log)
}

func NewS3Store(ctx context.Context, cfg config.S3Config, log *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "eu-central-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, log: log.Named("objectstore")}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	if len(body) > maxObjectSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, maxObjectSize)
	}
	return &Object{Key: key, ContentType: aws.ToString(out.ContentType), Body: body}, nil
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) *Upload {
	// Payload signing needs a seekable body.
	if _, ok := body.(io.ReadSeeker); !ok {
		buf, err := io.ReadAll(body)
		if err != nil {
			return startUpload(key, bytes.NewReader(nil), func(io.Reader) (UploadResult, error) {
				return UploadResult{}, err
			})
		}
		body = bytes.NewReader(buf)
		size = int64(len(buf))
	}

	return startUpload(key, body, func(r io.Reader) (UploadResult, error) {
		in := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   r,
		}
		if contentType != "" {
			in.ContentType = aws.String(contentType)
		}
		if size > 0 {
			in.ContentLength = aws.Int64(size)
		}
		out, err := s.client.PutObject(ctx, in)
		if err != nil {
			s.log.Warn("upload failed", zap.String("key", key), zap.Error(err))
			return UploadResult{}, fmt.Errorf("put object %s: %w", key, err)
		}
		return UploadResult{ETag: strings.Trim(aws.ToString(out.ETag), `"`)}, nil
	})
}

var _ Store = (*S3Store)(nil)
