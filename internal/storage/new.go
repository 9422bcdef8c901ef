package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	DriverS3    = "s3"
	DriverMinio = "minio"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver    string
	Region    string
	Endpoint  string
	UseSSL    bool
	AccessKey string
	SecretKey string
	Profile   string
}

// New builds the Service for opts.Driver. An empty driver means S3.
func New(ctx context.Context, opts Options) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverS3:
		client, err := NewS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewS3Service(client), nil
	case DriverMinio:
		return NewMinioService(MinioConfig{
			Endpoint:  opts.Endpoint,
			AccessKey: opts.AccessKey,
			SecretKey: opts.SecretKey,
			Region:    opts.Region,
			UseSSL:    opts.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

// NewS3Client loads AWS configuration. A configured access key pair takes
// precedence over the shared profile and the default credential chain.
func NewS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	if (opts.AccessKey == "") != (opts.SecretKey == "") {
		return nil, fmt.Errorf("access key and secret key must be set together")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	} else if opts.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(opts.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
