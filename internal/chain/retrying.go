package chain

import (
	"context"
	"errors"
	"time"

	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/cenkalti/backoff/v5"
)

// RetryConfig 指数退避参数
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// Retrying 对 ErrUnavailable 做指数退避重试的装饰器，其余错误直接返回
type Retrying struct {
	inner Client
	cfg   RetryConfig
}

// NewRetrying 包装链客户端
func NewRetrying(inner Client, cfg RetryConfig) *Retrying {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	return &Retrying{inner: inner, cfg: cfg}
}

func (r *Retrying) GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error) {
	return retry(ctx, r.cfg, "get transaction", func() (*TransactionRecord, error) {
		return r.inner.GetTransaction(ctx, hash)
	})
}

func (r *Retrying) GetBlockHeight(ctx context.Context) (uint64, error) {
	return retry(ctx, r.cfg, "get block height", func() (uint64, error) {
		return r.inner.GetBlockHeight(ctx)
	})
}

func (r *Retrying) GetBlock(ctx context.Context, number uint64) (*BlockRecord, error) {
	return retry(ctx, r.cfg, "get block", func() (*BlockRecord, error) {
		return r.inner.GetBlock(ctx, number)
	})
}

// SubscribeHeights 订阅不重试，断开后由调用方回退到轮询
func (r *Retrying) SubscribeHeights(ctx context.Context) (<-chan uint64, error) {
	return r.inner.SubscribeHeights(ctx)
}

func retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, errs.ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("%s failed, retrying in %s: %v", op, next, err)
		}),
	)
}
