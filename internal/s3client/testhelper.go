package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestClient returns a client for bucketName on a throwaway in-memory S3
// server. The bucket exists and is empty. The server stops with the test.
func TestClient(t testing.TB, bucketName, prefix string) *Client {
	t.Helper()
	return TestClientWithObjects(t, bucketName, prefix, nil)
}

// TestClientWithObjects is TestClient with objects stored up front. Keys are
// relative to prefix, as with PutObject.
func TestClientWithObjects(t testing.TB, bucketName, prefix string, objects map[string][]byte) *Client {
	t.Helper()

	srv := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(srv.Close)

	raw := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("tb-access", "tb-secret", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	ctx := context.Background()
	if _, err := raw.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		t.Fatalf("create bucket %s: %v", bucketName, err)
	}

	c := NewFromS3Client(raw, bucketName, prefix)
	for key, data := range objects {
		if err := c.PutObject(ctx, key, data, "application/octet-stream"); err != nil {
			t.Fatalf("seed object %s: %v", key, err)
		}
	}
	return c
}
