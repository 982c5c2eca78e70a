package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Scheme prefixes archive locations stored in S3.
const S3Scheme = "s3://"

// S3Config holds settings for the S3 storage backend.
type S3Config struct {
	// Bucket is the bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket.
	Prefix string
	// Region is the AWS region. Empty uses the default chain.
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers such as
	// MinIO or R2.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Validate checks that a bucket is set.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" or "bucket". A leading s3:// is
// stripped.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.TrimPrefix(path, S3Scheme)
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, strings.Trim(prefix, "/")
}

// NewS3Factory builds a store factory over S3 using the AWS default
// credential chain.
func NewS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("failed to load AWS config: %w", err), s3cfg.Bucket)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}

// NewS3Sink creates a sink over S3 storage.
func NewS3Sink(ctx context.Context, cfg Config, s3cfg S3Config) (*Sink, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewSinkWithFactory(cfg, factory)
}

// factoryFor resolves a location to a store factory.
func factoryFor(ctx context.Context, location string, s3cfg S3Config) (lode.StoreFactory, error) {
	switch {
	case location == "":
		return nil, errors.New("archive location is required")
	case strings.HasPrefix(location, S3Scheme):
		s3cfg.Bucket, s3cfg.Prefix = ParseS3Path(location)
		return NewS3Factory(ctx, s3cfg)
	default:
		return lode.NewFSFactory(strings.TrimPrefix(location, "file://")), nil
	}
}

// OpenRead opens the dataset at location for reading.
func OpenRead(ctx context.Context, dataset, location string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := factoryFor(ctx, location, s3cfg)
	if err != nil {
		return nil, err
	}
	return OpenReadDataset(dataset, factory)
}

// Open creates a sink for location: an s3://bucket/prefix URL or a
// filesystem directory. file:// is accepted for directories.
func Open(ctx context.Context, cfg Config, location string, s3cfg S3Config) (*Sink, error) {
	factory, err := factoryFor(ctx, location, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewSinkWithFactory(cfg, factory)
}
