package espbus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// WorkerMiddleware composes processing concerns (recovery, retry,
// timeout) around a WorkerNoTrigger, the same chain-of-responsibility
// shape the bus applies to Handlers, retargeted to async workers.
type WorkerMiddleware func(next WorkerNoTrigger) WorkerNoTrigger

// Chain composes middlewares around w in order: mws[0] is outermost.
func Chain(w WorkerNoTrigger, mws ...WorkerMiddleware) WorkerNoTrigger {
	wrapped := w
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// RecoveryMiddleware converts a worker panic into an error instead of
// crashing the goroutine it runs on.
func RecoveryMiddleware() WorkerMiddleware {
	return func(next WorkerNoTrigger) WorkerNoTrigger {
		return func(ctx context.Context) (p Payload, release func(), err error) {
			defer func() {
				if r := recover(); r != nil {
					p, release = nil, nil
					err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
				}
			}()
			return next(ctx)
		}
	}
}

// RetryConfig controls RetryMiddleware's retry behavior.
type RetryConfig struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	RetryIf     func(err error) bool
	Jitter      time.Duration
}

// RetryMiddleware provides bounded, selective retries around a worker.
func RetryMiddleware(cfg RetryConfig) WorkerMiddleware {
	return func(next WorkerNoTrigger) WorkerNoTrigger {
		return func(ctx context.Context) (Payload, func(), error) {
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(error) bool { return true }
			}
			var lastErr error
			for i := 1; i <= attempts; i++ {
				p, release, err := next(ctx)
				if err == nil {
					return p, release, nil
				}
				lastErr = err
				if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, nil, lastErr
				}
				if i == attempts || !shouldRetry(lastErr) {
					return nil, nil, lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return nil, nil, lastErr
					case <-time.After(wait):
					}
				}
			}
			return nil, nil, lastErr
		}
	}
}

// TimeoutMiddleware bounds a worker's execution time.
func TimeoutMiddleware(d time.Duration) WorkerMiddleware {
	if d <= 0 {
		return func(next WorkerNoTrigger) WorkerNoTrigger { return next }
	}
	return func(next WorkerNoTrigger) WorkerNoTrigger {
		return func(ctx context.Context) (Payload, func(), error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				p       Payload
				release func()
				err     error
			}
			resCh := make(chan result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						resCh <- result{err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
					}
				}()
				p, release, err := next(tctx)
				resCh <- result{p: p, release: release, err: err}
			}()

			select {
			case <-tctx.Done():
				return nil, nil, tctx.Err()
			case res := <-resCh:
				return res.p, res.release, res.err
			}
		}
	}
}
