package llm

import (
	"assessment_backend/pkg/logger"
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Retrier 仅对限流错误做指数退避重试：delay = base*2^attempt + [0, base) 抖动
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep 可替换，测试中避免真实等待
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter 返回 [0, max) 内的随机时长
	Jitter  func(max time.Duration) time.Duration
	OnRetry func(attempt int, delay time.Duration, err error)
}

func NewRetrier(maxRetries int, baseDelay time.Duration) *Retrier {
	return &Retrier{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
	}
}

func (r *Retrier) Delay(attempt int) time.Duration {
	d := r.BaseDelay << uint(attempt)
	if r.BaseDelay > 0 {
		d += r.jitter(r.BaseDelay)
	}
	return d
}

func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil || !IsThrottled(err) {
			return err
		}
		if attempt >= r.MaxRetries {
			return fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, err)
		}

		delay := r.Delay(attempt)
		logger.Log.Warn("Model request throttled, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("maxRetries", r.MaxRetries),
			zap.Duration("sleep", delay),
			zap.Error(err))
		if r.OnRetry != nil {
			r.OnRetry(attempt+1, delay, err)
		}

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func (r *Retrier) jitter(max time.Duration) time.Duration {
	if r.Jitter != nil {
		return r.Jitter(max)
	}
	return rand.N(max)
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
