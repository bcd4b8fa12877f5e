// Package cast 提供带溢出检查的整数转换，供二进制编解码使用.
package cast

import (
	"math"
	"strconv"

	"github.com/wyfcoding/forest/xerrors"
)

// IntToUint64 将非负 int 转为 uint64，负数截断为 0.
func IntToUint64(i int) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// Uint64ToInt 将 uint64 转为 int，超出 int 范围时返回错误.
func Uint64ToInt(u uint64) (int, error) {
	if u > math.MaxInt {
		return 0, xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss,
			"integer overflow: "+strconv.FormatUint(u, 10))
	}
	return int(u), nil
}

// Int64ToInt 将 int64 转为 int，超出 int 范围时返回错误.
func Int64ToInt(v int64) (int, error) {
	if v > math.MaxInt || v < math.MinInt {
		return 0, xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss,
			"integer overflow: "+strconv.FormatInt(v, 10))
	}
	return int(v), nil
}
