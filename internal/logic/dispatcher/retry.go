package dispatcher

import (
	"context"
	"time"
)

// retryWithBackoff 以指数退避重试 fn（base×2^attempt，封顶 cap），
// ctx 取消时立即返回。maxAttempts 含首次尝试。
func retryWithBackoff(ctx context.Context, maxAttempts int, base, cap time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if cap > 0 && delay > cap {
			delay = cap
		}
	}
}
