// Package config loads podfs settings from a config file, PODFS_* environment
// variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/podfs/podfs-go/internal/storage"
	"github.com/podfs/podfs-go/internal/storage/s3"
)

// EnvPrefix is prepended to every environment variable, e.g. PODFS_POD_URL.
const EnvPrefix = "PODFS"

// Keys shared by the config file, the environment and the CLI flags.
const (
	KeyPodURL   = "pod_url"
	KeyLogLevel = "log_level"

	KeyServerAddr = "server.addr"

	KeyStorageType = "storage.type"

	KeyPostgresDSN       = "storage.postgres.dsn"
	KeyPostgresTable     = "storage.postgres.table"
	KeyPostgresNamespace = "storage.postgres.namespace"

	KeyMongoURI        = "storage.mongodb.uri"
	KeyMongoDatabase   = "storage.mongodb.database"
	KeyMongoCollection = "storage.mongodb.collection"
	KeyMongoNamespace  = "storage.mongodb.namespace"

	KeyS3Bucket     = "storage.s3.bucket"
	KeyS3Region     = "storage.s3.region"
	KeyS3Endpoint   = "storage.s3.endpoint"
	KeyS3PasswdFile = "storage.s3.passwd_file"
)

// Config is the complete podfs configuration.
type Config struct {
	PodURL   string        `mapstructure:"pod_url"`
	LogLevel string        `mapstructure:"log_level"`
	Server   ServerConfig  `mapstructure:"server"`
	Storage  StorageConfig `mapstructure:"storage"`
}

// ServerConfig configures the sandbox pod server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig selects and configures the sandbox pod storage.
type StorageConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	S3       S3Config       `mapstructure:"s3"`
}

type PostgresConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	Namespace string `mapstructure:"namespace"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Namespace  string `mapstructure:"namespace"`
}

type S3Config struct {
	Bucket     string `mapstructure:"bucket"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	PasswdFile string `mapstructure:"passwd_file"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyStorageType, string(storage.BackendTypeMemory))
	v.SetDefault(KeyS3Region, "us-east-1")

	// Unmarshal only sees keys viper knows about; register the rest so
	// environment variables are picked up for them too.
	for _, key := range []string{
		KeyPodURL,
		KeyPostgresDSN, KeyPostgresTable, KeyPostgresNamespace,
		KeyMongoURI, KeyMongoDatabase, KeyMongoCollection, KeyMongoNamespace,
		KeyS3Bucket, KeyS3Endpoint, KeyS3PasswdFile,
	} {
		v.SetDefault(key, "")
	}
	return v
}

// Load reads the optional config file and decodes the settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// RequirePodURL returns the configured pod URL or an error naming the
// ways to set it.
func (c *Config) RequirePodURL() (string, error) {
	if c.PodURL == "" {
		return "", errors.New("pod URL is not set: use --pod-url, pod_url in the config file or PODFS_POD_URL")
	}
	return c.PodURL, nil
}

// BackendConfig converts the storage section into a storage.Config,
// resolving S3 credentials when the S3 backend is selected.
func (c *Config) BackendConfig() (storage.Config, error) {
	sc := c.Storage
	out := storage.Config{
		Type:              storage.BackendType(sc.Type),
		PostgresDSN:       sc.Postgres.DSN,
		PostgresTable:     sc.Postgres.Table,
		PostgresNamespace: sc.Postgres.Namespace,
		MongoURI:          sc.MongoDB.URI,
		MongoDatabase:     sc.MongoDB.Database,
		MongoCollection:   sc.MongoDB.Collection,
		MongoNamespace:    sc.MongoDB.Namespace,
	}
	if out.Type != storage.BackendTypeS3 {
		return out, nil
	}

	creds, err := ResolveCredentials(sc.S3.PasswdFile)
	if err != nil {
		return storage.Config{}, err
	}
	out.S3 = s3.Options{
		Bucket:          sc.S3.Bucket,
		Region:          sc.S3.Region,
		Endpoint:        sc.S3.Endpoint,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}
	return out, nil
}
