// Package blob re-exports the blob storage abstractions and selects a driver
// for the export destination.
package blob

import (
	"context"
	"fmt"
	"os"

	"chadograph/internal/blob/core"
	"chadograph/internal/blob/fs"
	"chadograph/internal/blob/memory"
	"chadograph/internal/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// NewFilesystem constructs a filesystem store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory constructs an in-memory store.
func NewMemory() Store { return memory.New() }

// NewS3 constructs an S3-backed store from explicit configuration.
func NewS3(ctx context.Context, cfg s3.Config) (Store, error) { return s3.New(ctx, cfg) }

// OpenS3Bucket constructs an S3 store for the given bucket with the remaining
// settings from the environment.
func OpenS3Bucket(ctx context.Context, bucket string) (Store, error) {
	return s3.OpenBucketFromEnv(ctx, bucket)
}

// Open selects a blob.Store implementation using environment variables.
//
//	CHADOGRAPH_BLOB_DRIVER: fs|s3|memory (default fs)
//	CHADOGRAPH_BLOB_FS_ROOT: directory root when driver=fs (default ./exportdata)
//	(S3 specific variables documented in s3/store.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CHADOGRAPH_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CHADOGRAPH_BLOB_FS_ROOT"))
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
