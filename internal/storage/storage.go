package storage

import (
	"context"
	"errors"
	"time"
)

// ErrBucketRequired is returned when an operation is attempted without a bucket.
var ErrBucketRequired = errors.New("storage bucket is required")

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service writes local files to remote object storage.
type Service interface {
	// PutFile uploads the full contents of localPath to bucket/key, overwriting
	// any existing object, and returns its s3:// location.
	PutFile(ctx context.Context, bucket, key, localPath string) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// Location formats the s3:// URI for an object.
func Location(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
