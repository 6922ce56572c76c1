package webhook

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver(t *testing.T) {
	orig := now
	now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = orig })

	client := &fakeS3{}
	a := &S3Archiver{client: client, bucket: "bounce-archive", prefix: "rejected"}
	require.NoError(t, a.Archive(context.Background(), "ses", []byte(`{bad`), strings.Repeat("x", 600)))

	assert.Equal(t, "bounce-archive", aws.ToString(client.in.Bucket))
	assert.True(t, strings.HasPrefix(aws.ToString(client.in.Key), "rejected/ses/2026/03/02/"))
	assert.True(t, strings.HasSuffix(aws.ToString(client.in.Key), ".json"))
	assert.Equal(t, `{bad`, client.body)
	assert.Len(t, client.in.Metadata["reason"], 512)
	assert.Equal(t, "ses", client.in.Metadata["provider"])
}
