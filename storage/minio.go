package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wyfcoding/forest/xerrors"
)

// MinIOClient 实现了 Storage 接口，是对接 MinIO 或 S3 兼容存储系统的具体驱动。
type MinIOClient struct {
	client *minio.Client
	bucket string // 当前驱动绑定的存储桶名称。
}

// NewMinIOClient 构造一个新的 MinIO 存储驱动。
// 流程：初始化客户端 -> 确认存储桶存在 (不存在则创建)。
func NewMinIOClient(ctx context.Context, endpoint, accessKeyID, secretAccessKey, bucket string, useSSL bool) (*MinIOClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		slog.Error("failed to create minio client", "endpoint", endpoint, "error", err)
		return nil, xerrors.WrapInternal(err, "create minio client")
	}

	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, xerrors.WrapInternal(err, "check minio bucket")
	}
	if !ok {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, xerrors.WrapInternal(err, "create minio bucket")
		}
		slog.Info("minio bucket created", "bucket", bucket)
	}

	slog.Info("minio_client initialized", "endpoint", endpoint, "bucket", bucket)
	return &MinIOClient{client: client, bucket: bucket}, nil
}

// Upload 将数据流上传至绑定的存储桶。
func (c *MinIOClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	start := time.Now()
	_, err := c.client.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		slog.Error("minio upload failed", "object", objectName, "error", err)
		return xerrors.WrapInternal(err, "minio upload")
	}
	slog.Debug("minio upload successful", "object", objectName, "duration", time.Since(start))
	return nil
}

// Download 读取对象.
// GetObject 是惰性的，这里先 Stat 一次，使对象不存在时立即返回 ErrObjectNotFound.
func (c *MinIOClient) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, xerrors.WrapInternal(err, "minio download")
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, notFound(objectName)
		}
		return nil, xerrors.WrapInternal(err, "minio stat")
	}
	return obj, nil
}

// Delete 删除对象.
func (c *MinIOClient) Delete(ctx context.Context, objectName string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return xerrors.WrapInternal(err, "minio delete")
	}
	return nil
}

// Exists 检查对象是否存在.
func (c *MinIOClient) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, xerrors.WrapInternal(err, "minio stat")
	}
	return true, nil
}

// String 便于日志输出.
func (c *MinIOClient) String() string {
	return fmt.Sprintf("minio://%s", c.bucket)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
