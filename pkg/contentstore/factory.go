package contentstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Kind selects a content store backend.
type Kind string

const (
	KindFS   Kind = "fs"
	KindIPFS Kind = "ipfs"
	KindS3   Kind = "s3"
	KindGCS  Kind = "gcs"
)

// Config selects and configures a backend. Only the fields of the selected
// kind are read.
type Config struct {
	Kind Kind

	Dir string // fs

	S3Bucket   string
	S3Region   string
	S3Endpoint string

	GCSBucket string

	Prefix string // s3, gcs

	PinataAPIKey     string
	PinataAPISecret  string
	PinataAPIURL     string
	PinataGatewayURL string
	Timeout          time.Duration
}

// New builds the configured store. An empty kind means fs.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Kind {
	case KindFS, "":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join("data", "content")
		}
		return NewFSStore(dir)
	case KindIPFS:
		return NewPinataStore(PinataConfig{
			APIKey:     cfg.PinataAPIKey,
			APISecret:  cfg.PinataAPISecret,
			APIURL:     cfg.PinataAPIURL,
			GatewayURL: cfg.PinataGatewayURL,
			Timeout:    cfg.Timeout,
		})
	case KindS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for s3 content store")
		}
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.Prefix,
		})
	case KindGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required for gcs content store")
		}
		return newGCSStore(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported content store: %q", cfg.Kind)
}
