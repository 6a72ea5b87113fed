//go:build integration

package s3

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/podfs/podfs-go/internal/storage/storagetest"
)

const (
	localStackEndpoint = "http://localhost:4566"
	localStackBucket   = "podfs-test-bucket"
)

func localStackAvailable() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(localStackEndpoint + "/_localstack/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func TestLocalStackBackend(t *testing.T) {
	if os.Getenv("PODFS_TEST_LOCALSTACK") == "" || !localStackAvailable() {
		t.Skip("LocalStack not available; start it and set PODFS_TEST_LOCALSTACK=1")
	}

	backend, err := NewBackend(Options{
		Bucket:          localStackBucket,
		Region:          "us-east-1",
		Endpoint:        localStackEndpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// The bucket may already exist from a previous run
	_ = backend.CreateBucket(ctx)

	storagetest.Run(t, backend, fmt.Sprintf("run-%d/", time.Now().UnixNano()))
}
