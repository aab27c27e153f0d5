package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/feichai0017/pdf-task-processor/config"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
	"github.com/feichai0017/pdf-task-processor/pkg/storage/local"
	"github.com/feichai0017/pdf-task-processor/pkg/storage/minio"
	"github.com/feichai0017/pdf-task-processor/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// ErrObjectNotFound is matched (errors.Is) by every backend's Get and Delete
// when the key does not exist.
var ErrObjectNotFound = fs.ErrNotExist

// Storage holds immutable blobs addressed by key.
type Storage interface {
	// Store writes the reader under key and returns the location to Get it by.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, cfg config.Config, log logger.Logger) (Storage, error) {
	switch StorageType(cfg.Storage.Type) {
	case StorageTypeLocal:
		return local.NewLocalStorage(cfg.Storage.LocalDir, log)
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
