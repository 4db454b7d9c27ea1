package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3-compatible storage configuration.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	Bucket    string `env:"MAIL_S3_BUCKET"`
	AccessKey string `env:"MAIL_S3_ACCESS_KEY"`
	SecretKey string `env:"MAIL_S3_SECRET_KEY"`

	// Endpoint is a custom endpoint URL for MinIO and other S3-compatible services.
	Endpoint string `env:"MAIL_S3_ENDPOINT"`
	Region   string `env:"MAIL_S3_REGION" envDefault:"us-east-1"`

	// ArchivePrefix is the key prefix sent messages are archived under.
	ArchivePrefix string `env:"MAIL_S3_ARCHIVE_PREFIX" envDefault:"sent"`

	// MaxAttachmentSize caps objects fetched as attachments, in bytes.
	MaxAttachmentSize int64 `env:"MAIL_S3_MAX_ATTACHMENT_SIZE" envDefault:"26214400"`

	// PathStyle enables path-style URLs (required for MinIO).
	PathStyle bool `env:"MAIL_S3_PATH_STYLE" envDefault:"false"`
}

// Default configuration values.
const (
	DefaultRegion            = "us-east-1"
	DefaultArchivePrefix     = "sent"
	DefaultMaxAttachmentSize = 25 << 20
	DefaultURLExpiry         = 7 * 24 * time.Hour
)

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ArchivePrefix == "" {
		c.ArchivePrefix = DefaultArchivePrefix
	}
	if c.MaxAttachmentSize <= 0 {
		c.MaxAttachmentSize = DefaultMaxAttachmentSize
	}
}

func (c *Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}
