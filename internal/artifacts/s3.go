// Package artifacts optionally mirrors completed result artifacts
// (calculation PNG/GeoTIFF outputs) to S3-compatible object storage
// alongside the on-disk results tree.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store uploads local result files to a configured S3 bucket. A nil
// *Store (returned when no bucket is configured) is valid and every
// method on it is a no-op, so callers never need to branch on whether
// mirroring is enabled.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds a Store from AWS SDK default credential/region resolution.
// bucket == "" disables mirroring: New returns (nil, nil) in that case.
func New(ctx context.Context, bucket, prefix, region string) (*Store, error) {
	if bucket == "" {
		return nil, nil
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: load aws config: %w", err)
	}

	return &Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *Store) key(requestID, filename string) string {
	if s.prefix == "" {
		return fmt.Sprintf("%s/%s", requestID, filename)
	}
	return fmt.Sprintf("%s/%s/%s", s.prefix, requestID, filename)
}

// UploadFile mirrors a local file under the job's request id. No-op on
// a nil Store.
func (s *Store) UploadFile(ctx context.Context, requestID, filename, localPath, contentType string) error {
	if s == nil {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("artifacts: open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(requestID, filename)),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("artifacts: put %s/%s: %w", requestID, filename, err)
	}
	return nil
}

// Download streams a mirrored artifact back, for deployments where the
// HTTP front-end and the process that produced the result don't share
// a filesystem. Returns the body reader; caller must Close it. No-op
// (nil, nil) on a nil Store — callers should treat that as "not found
// here" and fall back to local disk.
func (s *Store) Download(ctx context.Context, requestID, filename string) (io.ReadCloser, error) {
	if s == nil {
		return nil, nil
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(requestID, filename)),
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: get %s/%s: %w", requestID, filename, err)
	}
	return out.Body, nil
}
