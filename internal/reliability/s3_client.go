package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Client wraps an S3-compatible object store (R2, MinIO, AWS S3 itself)
// behind the narrow upload/list/delete surface the backup service needs.
type S3Client struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewS3Client builds a client against an S3-compatible endpoint using static
// credentials, matching the teacher's R2 wiring but generalized to any
// endpoint/region pair from BackupConfig.
func NewS3Client(endpoint, region, accessKeyID, secretAccessKey, bucket string, log zerolog.Logger) (*S3Client, error) {
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("s3 backup: missing access key or secret key")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 backup: missing bucket name")
	}

	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		UsePathStyle: true,
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}

	client := s3.New(opts)

	return &S3Client{
		client: client,
		bucket: bucket,
		log:    log.With().Str("component", "s3_backup").Logger(),
	}, nil
}

// Upload streams r to key in the configured bucket using a multipart-capable
// uploader, so large backup archives don't have to fit in memory.
func (c *S3Client) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	uploader := manager.NewUploader(c.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	c.log.Debug().Str("key", key).Int64("size_bytes", size).Msg("uploaded backup object")
	return nil
}

// ObjectInfo describes a single object returned from List.
type ObjectInfo struct {
	Key  *string
	Size *int64
}

// List returns every object under the given prefix.
func (c *S3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size})
		}
	}
	return objects, nil
}

// Delete removes a single object by key.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}
