package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures an s3Backend. EndpointURL/PublicRead exist so the
// same backend serves both AWS S3 and an R2 bucket, per SPEC_FULL.md's
// DOMAIN STACK entry for aws-sdk-go-v2.
type S3Config struct {
	Region      string
	Bucket      string
	AccessKey   string
	SecretKey   string
	EndpointURL string
	PublicRead  bool
}

// s3Backend implements remoteBackend against an S3-compatible bucket.
// Adapted from the teacher's internal/storage/S3Storage, trimmed to the
// three operations RemoteStorage actually needs: publishing a staged file,
// checking whether a key exists, and probing that the bucket is reachable.
type s3Backend struct {
	client     *s3.Client
	bucket     string
	publicRead bool
}

func newS3Backend(ctx context.Context, cfg S3Config) (*s3Backend, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
			config.WithRegion(cfg.Region),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %s: %w", cfg.Bucket, err)
	}

	return &s3Backend{client: client, bucket: cfg.Bucket, publicRead: cfg.PublicRead}, nil
}

func (b *s3Backend) upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if b.publicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	_, err = b.client.PutObject(ctx, input)
	return err
}

func (b *s3Backend) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *s3Backend) probe(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	return err
}
