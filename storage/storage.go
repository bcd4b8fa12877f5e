// Package storage 定义模型文件的对象存储接口，提供本地目录与 MinIO 两种驱动.
package storage

import (
	"context"
	"io"

	"github.com/wyfcoding/forest/retry"
	"github.com/wyfcoding/forest/xerrors"
)

// Storage 定义了对象存储的通用接口，支持多驱动扩展。
type Storage interface {
	// Upload 上传对象，已存在时覆盖
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error

	// Download 下载对象；不存在时返回 ErrObjectNotFound
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)

	// Delete 删除对象，对象不存在不视为错误
	Delete(ctx context.Context, objectName string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, objectName string) (bool, error)
}

// 驱动名称.
const (
	DriverLocal = "local"
	DriverMinIO = "minio"
)

// Config 存储配置.
type Config struct {
	Driver          string `mapstructure:"driver" validate:"oneof=local minio"`
	Root            string `mapstructure:"root" validate:"required_if=Driver local"`
	Endpoint        string `mapstructure:"endpoint" validate:"required_if=Driver minio"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name" validate:"required_if=Driver minio"`
	UseSSL          bool   `mapstructure:"use_ssl"`

	Retry retry.Config `mapstructure:"retry"` // 仅作用于远程驱动
}

// New 按配置创建存储驱动.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case DriverLocal, "":
		return NewLocal(cfg.Root)
	case DriverMinIO:
		client, err := NewMinIOClient(ctx, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.BucketName, cfg.UseSSL)
		if err != nil {
			return nil, err
		}
		return WithRetry(client, cfg.Retry), nil
	default:
		return nil, xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "unknown storage driver").
			WithDetail("driver=%q", cfg.Driver)
	}
}

func notFound(objectName string) error {
	return xerrors.Wrap(xerrors.ErrObjectNotFound, xerrors.ErrNotFound, "object not found").WithContext("object", objectName)
}
