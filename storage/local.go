package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wyfcoding/forest/xerrors"
)

// Local 把对象保存为 root 目录下的文件，对象名中的 / 对应子目录.
type Local struct {
	root string
}

// NewLocal 创建本地驱动，root 不存在时自动创建.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, xerrors.WrapInternal(err, "create storage root")
	}
	slog.Info("local storage initialized", "root", root)
	return &Local{root: root}, nil
}

func (l *Local) path(objectName string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectName))
	if objectName == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "invalid object name").
			WithDetail("%q", objectName)
	}
	return filepath.Join(l.root, clean), nil
}

// Upload 先写临时文件再重命名，读者不会看到写了一半的对象.
func (l *Local) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	p, err := l.path(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return xerrors.WrapInternal(err, "create object directory")
	}
	start := time.Now()
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return xerrors.WrapInternal(err, "create temp object")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		return xerrors.WrapInternal(err, "write object")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.WrapInternal(err, "close object")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return xerrors.WrapInternal(err, "commit object")
	}
	slog.Debug("local upload successful", "object", objectName, "bytes", n, "duration", time.Since(start))
	return nil
}

// Download 打开对象文件.
func (l *Local) Download(_ context.Context, objectName string) (io.ReadCloser, error) {
	p, err := l.path(objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(objectName)
	}
	if err != nil {
		return nil, xerrors.WrapInternal(err, "open object")
	}
	return f, nil
}

// Delete 删除对象文件.
func (l *Local) Delete(_ context.Context, objectName string) error {
	p, err := l.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.WrapInternal(err, "delete object")
	}
	return nil
}

// Exists 检查对象文件是否存在.
func (l *Local) Exists(_ context.Context, objectName string) (bool, error) {
	p, err := l.path(objectName)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, xerrors.WrapInternal(err, "stat object")
	}
}
