package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType names an artifact storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Type    StoreType
	DataDir string // fs: packages live in DataDir/reports
	Bucket  string // s3, gcs
	Prefix  string // s3, gcs
	Region  string // s3
	// Endpoint points S3 at a compatible service such as MinIO.
	Endpoint string
}

// StoreConfigFromEnv reads the store settings:
//
//   - ARTIFACT_STORAGE_TYPE: "fs" (default), "s3" or "gcs"
//   - DATA_DIR: filesystem base (default "data")
//   - ARTIFACT_S3_BUCKET, ARTIFACT_S3_PREFIX, ARTIFACT_S3_ENDPOINT,
//     ARTIFACT_S3_REGION (falls back to AWS_REGION, then us-east-1)
//   - ARTIFACT_GCS_BUCKET, ARTIFACT_GCS_PREFIX
func StoreConfigFromEnv() StoreConfig {
	cfg := StoreConfig{
		Type:    StoreType(os.Getenv("ARTIFACT_STORAGE_TYPE")),
		DataDir: os.Getenv("DATA_DIR"),
	}
	switch cfg.Type {
	case StoreTypeS3:
		cfg.Bucket = os.Getenv("ARTIFACT_S3_BUCKET")
		cfg.Prefix = os.Getenv("ARTIFACT_S3_PREFIX")
		cfg.Endpoint = os.Getenv("ARTIFACT_S3_ENDPOINT")
		cfg.Region = firstNonEmpty(os.Getenv("ARTIFACT_S3_REGION"), os.Getenv("AWS_REGION"), "us-east-1")
	case StoreTypeGCS:
		cfg.Bucket = os.Getenv("ARTIFACT_GCS_BUCKET")
		cfg.Prefix = os.Getenv("ARTIFACT_GCS_PREFIX")
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewStore creates the store described by cfg. An empty Type means fs.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeFS, "":
		return NewFileStore(filepath.Join(firstNonEmpty(cfg.DataDir, "data"), "reports"))
	case StoreTypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("ARTIFACT_S3_BUCKET is required for S3 storage")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case StoreTypeGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", cfg.Type)
	}
}

// NewStoreFromEnv is NewStore(ctx, StoreConfigFromEnv()).
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	return NewStore(ctx, StoreConfigFromEnv())
}
