package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// Client presigns product downloads against one bucket.
type Client struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	config    *Config
}

// NewClient builds the S3 client. It does not touch the network; call
// CheckBucket to verify credentials and bucket access.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 downloads are disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible stores (MinIO, B2) expect path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	return &Client{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		config:    cfg,
	}, nil
}

// CheckBucket verifies that the bucket is reachable with the configured credentials.
func (c *Client) CheckBucket(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.config.BucketName, err)
	}
	log.Infof("[Storage] Bucket %s reachable", c.config.BucketName)
	return nil
}

// PresignDownload returns a GET URL for objectKey that saves as fileName.
// ttl is capped at the configured maximum.
func (c *Client) PresignDownload(ctx context.Context, objectKey, fileName string, ttl time.Duration) (string, error) {
	objectKey = strings.TrimPrefix(objectKey, "/")
	if objectKey == "" {
		return "", fmt.Errorf("empty object key")
	}
	if ttl <= 0 || ttl > c.config.MaxPresignTTL {
		ttl = c.config.MaxPresignTTL
	}
	if fileName == "" {
		fileName = path.Base(objectKey)
	}

	input := &s3.GetObjectInput{
		Bucket:                     aws.String(c.config.BucketName),
		Key:                        aws.String(objectKey),
		ResponseContentDisposition: aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": fileName})),
	}
	req, err := c.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return req.URL, nil
}
