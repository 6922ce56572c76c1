package webhook

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Archiver keeps raw payloads that could not be parsed so they can be
// inspected and replayed.
type Archiver interface {
	Archive(ctx context.Context, provider string, body []byte, reason string) error
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes payloads to <prefix>/<provider>/<yyyy>/<mm>/<dd>/<uuid>.json.
type S3Archiver struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver for bucket.
func NewS3Archiver(client *s3.Client, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, provider string, body []byte, reason string) error {
	t := now().UTC()
	key := path.Join(a.prefix, provider, t.Format("2006/01/02"), uuid.New().String()+".json")
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"reason": truncate(reason, 512), "provider": provider},
	})
	if err != nil {
		return fmt.Errorf("archive payload to s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
