//go:build integration

package mongodb

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/podfs/podfs-go/internal/storage/storagetest"
)

// Run with PODFS_TEST_MONGO_URI=mongodb://localhost:27017
func TestMongoBackend(t *testing.T) {
	uri := os.Getenv("PODFS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PODFS_TEST_MONGO_URI not set")
	}

	backend, err := NewMongoBackend(uri, "podfs_test", "pod_objects", fmt.Sprintf("test-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	defer backend.Close()

	storagetest.Run(t, backend, "")
}
