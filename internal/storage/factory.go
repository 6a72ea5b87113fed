package storage

import (
	"fmt"

	"github.com/podfs/podfs-go/internal/storage/memory"
	"github.com/podfs/podfs-go/internal/storage/mongodb"
	"github.com/podfs/podfs-go/internal/storage/postgres"
	"github.com/podfs/podfs-go/internal/storage/s3"
	"github.com/podfs/podfs-go/internal/storage/types"
)

// BackendType represents the type of storage backend
type BackendType string

const (
	BackendTypeMemory   BackendType = "memory"
	BackendTypePostgres BackendType = "postgres"
	BackendTypeMongoDB  BackendType = "mongodb"
	BackendTypeS3       BackendType = "s3"
)

// Config holds configuration for creating a backend
type Config struct {
	Type BackendType

	// Postgres config
	PostgresDSN       string
	PostgresTable     string
	PostgresNamespace string

	// MongoDB config
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	MongoNamespace  string

	// S3 config
	S3 s3.Options
}

// NewBackend creates a new storage backend based on the config
func NewBackend(config Config) (types.Backend, error) {
	switch config.Type {
	case "", BackendTypeMemory:
		return memory.New(), nil

	case BackendTypePostgres:
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("PostgreSQL connection string is required")
		}
		table := config.PostgresTable
		if table == "" {
			table = "pod_objects"
		}
		namespace := config.PostgresNamespace
		if namespace == "" {
			namespace = "default"
		}
		return postgres.NewPostgresBackend(config.PostgresDSN, table, namespace)

	case BackendTypeMongoDB:
		if config.MongoURI == "" {
			return nil, fmt.Errorf("MongoDB URI is required")
		}
		database := config.MongoDatabase
		if database == "" {
			database = "podfs"
		}
		collection := config.MongoCollection
		if collection == "" {
			collection = "pod_objects"
		}
		namespace := config.MongoNamespace
		if namespace == "" {
			namespace = "default"
		}
		return mongodb.NewMongoBackend(config.MongoURI, database, collection, namespace)

	case BackendTypeS3:
		if config.S3.Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required")
		}
		return s3.NewBackend(config.S3)

	default:
		return nil, fmt.Errorf("unknown backend type: %s", config.Type)
	}
}
