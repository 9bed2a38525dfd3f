// Package awsclient builds IAM-authenticated connections to the platform's
// AWS-hosted dependencies: a Postgres RDS instance and an S3 bucket used by
// the snapshot exporter.
package awsclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	rdsutils "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config describes one RDS database and S3 bucket reachable under a single
// AWS profile/region.
type Config struct {
	Profile string // non-empty only for local/dev credential resolution
	Region  string

	S3Bucket string

	DBEndpoint string // e.g. tsingest-prod.abc123xyz.eu-central-1.rds.amazonaws.com
	DBUser     string // IAM-enabled database user
	DBName     string
	DBPort     int
}

// LoadAWSConfig resolves credentials and region via the default SDK chain,
// optionally pinned to a named profile.
func (c *Config) LoadAWSConfig(ctx context.Context) (*aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(c.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("awsclient: load SDK config: %w", err)
	}
	return &cfg, nil
}

// RDSAuthDSN builds a lib/pq connection string authenticated with a
// short-lived IAM token in place of a static password, per
// feature/rds/auth. The token is generated locally from the loaded
// credentials and is not an API call.
func (c *Config) RDSAuthDSN(ctx context.Context) (string, error) {
	awsCfg, err := c.LoadAWSConfig(ctx)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s:%d", c.DBEndpoint, c.DBPort)
	token, err := rdsutils.BuildAuthToken(ctx, endpoint, c.Region, c.DBUser, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("awsclient: build RDS auth token: %w", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=require",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(token),
		endpoint,
		url.QueryEscape(c.DBName),
	)
	return dsn, nil
}

// NewS3Client builds the S3 client backing the snapshot exporter. The core
// ingestion path never touches S3 — only internal/snapshot does.
func NewS3Client(ctx context.Context, cfg *Config) (*s3.Client, error) {
	awsCfg, err := cfg.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("awsclient: S3 client: %w", err)
	}
	return s3.NewFromConfig(*awsCfg), nil
}
