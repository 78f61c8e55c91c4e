//go:build integration

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestS3RemoteStorageIntegration exercises RemoteStorage against a real
// S3/R2 bucket. Set AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_ENDPOINT_URL and S3_BUCKET to run it.
func TestS3RemoteStorageIntegration(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("S3_BUCKET not set, skipping S3 integration test")
	}

	ctx := context.Background()
	cfg := S3Config{
		Region:      envOrDefault("AWS_REGION", "auto"),
		Bucket:      bucket,
		AccessKey:   os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		EndpointURL: os.Getenv("AWS_ENDPOINT_URL"),
	}

	rs, err := NewS3RemoteStorage(ctx, cfg, t.TempDir())
	if err != nil {
		t.Fatalf("NewS3RemoteStorage: %v", err)
	}

	if !rs.CanWriteTo("") {
		t.Fatal("expected bucket to be reachable")
	}

	src := filepath.Join(t.TempDir(), "probe.txt")
	if err := os.WriteFile(src, []byte("hello r2"), 0o644); err != nil {
		t.Fatalf("write local fixture: %v", err)
	}

	key := "spatelier-integration-test.txt"
	if err := rs.Publish(ctx, src, key); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	exists, err := rs.backend.exists(ctx, key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Error("uploaded object should exist")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
