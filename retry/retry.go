// Package retry 提供指数退避重试，用于对象存储等可能瞬时失败的远程调用.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/xerrors"
)

// Func 定义了可被重试执行的函数原型.
type Func func(ctx context.Context) error

// Config 重试策略.
type Config struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"     validate:"gte=0"`
	Multiplier     float64       `mapstructure:"multiplier"      validate:"gte=1"`
	Jitter         float64       `mapstructure:"jitter"          validate:"gte=0,lte=1"`
	MaxRetries     int           `mapstructure:"max_retries"     validate:"gte=0"` // 0 表示只执行一次
}

// DefaultConfig 返回默认重试配置.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// Do 按策略执行 fn，直到成功、次数用尽或 ctx 结束.
func Do(ctx context.Context, op string, fn Func, cfg Config) error {
	return DoIf(ctx, op, fn, func(error) bool { return true }, cfg)
}

// DoIf 仅在 shouldRetry 返回 true 时重试，最终错误保留原错误链.
func DoIf(ctx context.Context, op string, fn Func, shouldRetry func(error) bool, cfg Config) error {
	backoff := cfg.InitialBackoff

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !shouldRetry(err) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			if attempt == 0 {
				return err
			}
			return xerrors.Wrap(err, xerrors.ErrInternal, op+" failed after retries").WithContext("attempts", attempt+1)
		}

		logging.Warn(ctx, "operation failed, retrying", "op", op, "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return xerrors.Wrap(ctx.Err(), xerrors.ErrInternal, op+" cancelled").WithContext("attempts", attempt+1)
		case <-time.After(backoff):
		}

		next := float64(backoff) * cfg.Multiplier
		if cfg.Jitter > 0 {
			next += (rand.Float64()*2 - 1) * cfg.Jitter * next
		}
		backoff = time.Duration(next)
		if cfg.MaxBackoff > 0 {
			backoff = min(backoff, cfg.MaxBackoff)
		}
	}
}
