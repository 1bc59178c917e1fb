package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"claimsync/internal/config"
	"claimsync/internal/observability"
)

// S3 archives artifacts in an S3 (or S3-compatible) bucket. Path-style
// addressing is used so MinIO-style endpoints work out of the box.
type S3 struct {
	client  *s3.Client
	bucket  string
	logger  observability.Logger
	metrics observability.Metrics
}

func newS3(cfg config.ArchiveConfig, logger observability.Logger, metrics observability.Metrics) (*S3, error) {
	awsCfg, err := buildAWSConfig(cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = true
	})

	a := &S3{
		client:  client,
		bucket:  cfg.BucketOrPath,
		logger:  logger,
		metrics: metrics,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("verify archive bucket: %w", err)
	}
	return a, nil
}

func (a *S3) Archive(ctx context.Context, localPath, key string) error {
	start := time.Now()

	file, err := os.Open(localPath)
	if err != nil {
		a.metrics.RecordError("archive", "open")
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(filepath.ToSlash(strings.TrimPrefix(key, "/"))),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		a.metrics.RecordError("archive", "put")
		return fmt.Errorf("put object: %w", err)
	}

	a.metrics.RecordSuccess("archive")
	a.metrics.RecordDuration("archive", time.Since(start).Seconds())
	a.logger.Debug(ctx, "artifact archived", observability.Fields{
		"bucket": a.bucket,
		"key":    key,
		"bytes":  stat.Size(),
	})
	return nil
}

func (a *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(filepath.ToSlash(strings.TrimPrefix(key, "/"))),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object: %w", err)
	}
	return true, nil
}

// ensureBucket creates the bucket when it does not exist yet.
func (a *S3) ensureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("head bucket: %w", err)
	}

	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func buildAWSConfig(cfg config.S3Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
