package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig encapsulates the connection info for MinIO or another S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioService implements Service on top of minio-go.
type MinioService struct {
	client *minio.Client
}

func NewMinioService(cfg MinioConfig) (*MinioService, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}
	// minio-go wants host[:port]; the scheme is selected by UseSSL.
	secure := cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		secure = true
		endpoint = strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		secure = false
		endpoint = strings.TrimPrefix(endpoint, "http://")
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioService{client: client}, nil
}

func (s *MinioService) PutFile(ctx context.Context, bucket, key, localPath string) (string, error) {
	if bucket == "" {
		return "", ErrBucketRequired
	}
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	if _, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return "", err
	}
	return Location(bucket, key), nil
}

func (s *MinioService) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" {
		return nil, ErrBucketRequired
	}

	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		info := ObjectInfo{Key: obj.Key, Size: obj.Size}
		if !obj.LastModified.IsZero() {
			lastModified := obj.LastModified
			info.LastModified = &lastModified
		}
		objects = append(objects, info)
	}
	return objects, nil
}

var _ Service = (*MinioService)(nil)
