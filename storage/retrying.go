package storage

import (
	"context"
	"errors"
	"io"

	"github.com/wyfcoding/forest/retry"
	"github.com/wyfcoding/forest/xerrors"
)

// retrying 在远程驱动外层包装指数退避重试.
type retrying struct {
	Storage
	cfg retry.Config
}

// WithRetry 为 s 的每个操作加上重试.
// Upload 只有在 reader 实现 io.Seeker 时才会重试，每次重试前回到起点.
func WithRetry(s Storage, cfg retry.Config) Storage {
	return &retrying{Storage: s, cfg: cfg}
}

// transient 判断错误是否值得重试：对象不存在与参数错误不会因重试而改变.
func transient(err error) bool {
	if errors.Is(err, xerrors.ErrObjectNotFound) {
		return false
	}
	return xerrors.TypeOf(err) != xerrors.ErrInvalidArg
}

func (r *retrying) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	seeker, ok := reader.(io.Seeker)
	if !ok {
		return r.Storage.Upload(ctx, objectName, reader, size, contentType)
	}
	return retry.DoIf(ctx, "storage upload", func(ctx context.Context) error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return xerrors.Wrap(err, xerrors.ErrInvalidArg, "rewind upload body")
		}
		return r.Storage.Upload(ctx, objectName, reader, size, contentType)
	}, transient, r.cfg)
}

func (r *retrying) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := retry.DoIf(ctx, "storage download", func(ctx context.Context) error {
		var err error
		rc, err = r.Storage.Download(ctx, objectName)
		return err
	}, transient, r.cfg)
	return rc, err
}

func (r *retrying) Delete(ctx context.Context, objectName string) error {
	return retry.DoIf(ctx, "storage delete", func(ctx context.Context) error {
		return r.Storage.Delete(ctx, objectName)
	}, transient, r.cfg)
}

func (r *retrying) Exists(ctx context.Context, objectName string) (bool, error) {
	var found bool
	err := retry.DoIf(ctx, "storage exists", func(ctx context.Context) error {
		var err error
		found, err = r.Storage.Exists(ctx, objectName)
		return err
	}, transient, r.cfg)
	return found, err
}
