// Package storage archives uploaded source videos to S3-compatible object
// storage once they have been handed to the video provider.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tbourn/course-platform-backend/internal/config"
)

// Archiver stores a local file under key.
type Archiver interface {
	Archive(ctx context.Context, localPath, key string) error
}

// NopArchiver discards archive requests. Used when S3 is disabled.
type NopArchiver struct{}

// Archive implements Archiver.
func (NopArchiver) Archive(context.Context, string, string) error { return nil }

// putObjectAPI is the slice of the S3 client the archiver needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads files to one bucket.
type S3Archiver struct {
	client putObjectAPI
	bucket string
}

// NewS3Archiver builds a client from static credentials. A custom endpoint
// (MinIO, B2, R2) switches to path-style addressing.
func NewS3Archiver(ctx context.Context, cfg config.S3Config) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

// New returns an S3Archiver when cfg is enabled, else NopArchiver.
func New(ctx context.Context, cfg config.S3Config) (Archiver, error) {
	if !cfg.Enabled {
		return NopArchiver{}, nil
	}
	return NewS3Archiver(ctx, cfg)
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat %s: %w", localPath, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("storage: put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// ObjectKey builds "videos/<yyyy>/<mm>/<vimeoID><ext>" for an uploaded file.
func ObjectKey(vimeoID, filename string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join("videos", at.UTC().Format("2006"), at.UTC().Format("01"), vimeoID+ext)
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
