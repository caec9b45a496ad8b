package baseline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tripflow/tripflow/pkg/errors"
)

// S3Config configures the S3 baseline backend.
type S3Config struct {
	// Bucket is the S3 bucket for storing baselines
	Bucket string

	// Prefix is prepended to all baseline keys (e.g., "baselines/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket string) S3Config {
	return S3Config{
		Bucket:  bucket,
		Prefix:  "baselines/",
		Timeout: 30 * time.Second,
	}
}

// S3Store keeps baselines in S3 so a fleet of runs can share them.
type S3Store struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Store creates an S3 baseline backend.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to load AWS config")
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{cfg: cfg, client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// Name returns "s3".
func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) objectKey(key string) string {
	return s.cfg.Prefix + key + ".json"
}

// Save uploads the baseline as a JSON object.
func (s *S3Store) Save(ctx context.Context, b *Baseline) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to marshal baseline")
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.objectKey(b.Key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to save baseline to S3").
			WithContext("key", b.Key)
	}
	return nil
}

// Load downloads a baseline by key.
func (s *S3Store) Load(ctx context.Context, key string) (*Baseline, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to load baseline from S3").
			WithContext("key", key)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to read baseline body").
			WithContext("key", key)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to decode baseline").
			WithContext("key", key)
	}
	return &b, nil
}

// Delete removes a baseline object.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to delete baseline from S3").
			WithContext("key", key)
	}
	return nil
}

// List returns the keys of all stored baselines, paging through results.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var keys []string
	var continuationToken *string
	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(s.cfg.Prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to list baselines from S3")
		}
		for _, obj := range output.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.cfg.Prefix)
			key = strings.TrimSuffix(key, ".json")
			keys = append(keys, key)
		}
		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}
	return keys, nil
}

var _ Store = (*S3Store)(nil)
