// Package config builds a ready-to-serve Service from environment-driven
// configuration: repository (memory or postgres) plus one blob storage
// backend (memory, filesystem or S3).
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-filestore/pkg/simplefilestore"
	repomemory "github.com/tendant/simple-filestore/pkg/simplefilestore/repo/memory"
	repopg "github.com/tendant/simple-filestore/pkg/simplefilestore/repo/postgres"
	fsstorage "github.com/tendant/simple-filestore/pkg/simplefilestore/storage/fs"
	memorystorage "github.com/tendant/simple-filestore/pkg/simplefilestore/storage/memory"
	s3storage "github.com/tendant/simple-filestore/pkg/simplefilestore/storage/s3"
)

// ServerConfig represents server configuration for the simple-filestore
// service.
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// Database configuration. An empty DatabaseURL selects the in-memory
	// repository; a postgresql:// URL selects the pgx repository.
	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	// Storage configuration.
	StorageType string `env:"STORAGE_TYPE" env-default:"memory"` // memory, fs, s3
	FSBaseDir   string `env:"FS_BASE_DIR" env-default:"./data/blobs"`

	S3Region          string `env:"S3_REGION" env-default:""`
	S3Bucket          string `env:"S3_BUCKET" env-default:""`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID" env-default:""`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" env-default:""`
	S3Endpoint        string `env:"S3_ENDPOINT" env-default:""`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
}

// Load reads the server configuration from the environment.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for fatal wiring mistakes before any
// collaborator is constructed.
func (c *ServerConfig) Validate() error {
	switch c.StorageType {
	case "memory", "fs":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("unsupported DATABASE_URL scheme")
	}
	return nil
}

// BuildService constructs the repository and blob store named by the
// configuration and wires them into a Service.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (simplefilestore.Service, error) {
	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := c.buildBlobStore()
	if err != nil {
		return nil, err
	}
	return simplefilestore.New(
		simplefilestore.WithRepository(repo),
		simplefilestore.WithBlobStore(blobs),
		simplefilestore.WithLogger(logger),
	)
}

func (c *ServerConfig) buildRepository(ctx context.Context) (simplefilestore.Repository, error) {
	if c.DatabaseURL == "" {
		return repomemory.New(), nil
	}
	pool, err := pgxpool.New(ctx, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return repopg.NewWithPool(pool), nil
}

func (c *ServerConfig) buildBlobStore() (simplefilestore.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3Region,
			Bucket:                 c.S3Bucket,
			AccessKeyID:            c.S3AccessKeyID,
			SecretAccessKey:        c.S3SecretAccessKey,
			Endpoint:               c.S3Endpoint,
			UsePathStyle:           c.S3UsePathStyle,
			CreateBucketIfNotExist: c.S3CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.StorageType)
	}
}
