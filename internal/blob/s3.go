// Package blob stores gallery images in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"

	"github.com/venuedex/enrich-cli/internal/config"
)

// Uploader persists image bytes and resolves their public URLs.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3Uploader implements Uploader against S3 or any S3-compatible endpoint
// (DO Spaces, R2, MinIO).
type S3Uploader struct {
	client *s3.Client
	cfg    config.BlobConfig
}

// NewS3Uploader creates an uploader from blob config. A custom endpoint
// switches the client to path-style addressing.
func NewS3Uploader(ctx context.Context, cfg config.BlobConfig) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, eris.Wrap(err, "blob: load aws config")
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Uploader{client: client, cfg: cfg}, nil
}

// Put uploads the data under the configured prefix and returns the public
// URL of the stored object.
func (u *S3Uploader) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullKey := key
	if u.cfg.Prefix != "" {
		fullKey = strings.TrimSuffix(u.cfg.Prefix, "/") + "/" + key
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", eris.Wrapf(err, "blob: put object %s", fullKey)
	}
	return u.publicURL(fullKey), nil
}

func (u *S3Uploader) publicURL(key string) string {
	if u.cfg.PublicURL != "" {
		return strings.TrimSuffix(u.cfg.PublicURL, "/") + "/" + key
	}
	if u.cfg.Endpoint != "" {
		// Path-style on custom endpoints: https://{endpoint}/{bucket}/{key}
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(u.cfg.Endpoint, "/"), u.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}
