package storage

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
)

// Config holds the object store that serves purchased product files.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
	MaxPresignTTL   time.Duration
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("S3_DOWNLOADS_ENABLED", "false") == "true",
		MaxPresignTTL:   time.Duration(env.GetEnvInt("S3_PRESIGN_MAX_MINUTES", 15)) * time.Minute,
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 downloads are enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 downloads are enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 downloads are enabled")
		}
	}
	if config.MaxPresignTTL <= 0 {
		config.MaxPresignTTL = 15 * time.Minute
	}

	return config, nil
}

// IsEnabled returns true if product downloads are served from S3
func (c *Config) IsEnabled() bool {
	return c.Enabled
}
