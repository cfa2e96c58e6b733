package bridge

import (
	"context"
	"math/rand"
	"time"

	logx "blockd/pkg/logx"
)

// CallOptions bounds one wrapped bridge call.
type CallOptions struct {
	Timeout  time.Duration
	RetryMax int // additional attempts after the first

	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (o CallOptions) withDefaults() CallOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	return o
}

// Call runs fn with a caller-side timeout and bounded retry with backoff.
//
// A timeout or transient IPC failure on one call is retried up to RetryMax
// times and then reported for that call only; it never blocks a polling loop
// indefinitely and never fails a whole batch. Non-retryable errors
// (validation, permission, unavailable bridge, NoRetry-wrapped) short-circuit
// immediately.
func Call[T any](ctx context.Context, log logx.Logger, name string, opt CallOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	opt = opt.withDefaults()

	var zero T
	var out T
	var err error

	maxAttempts := 1 + opt.RetryMax
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, opt.Timeout)
		out, err = fn(callCtx)
		cancel()

		if err == nil {
			return out, nil
		}
		if IsNoRetry(err) || attempt >= maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		delay := backoffDelay(opt, attempt)
		log.Debug("bridge call retry scheduled",
			logx.String("call", name),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return zero, ctx.Err()
		case <-tmr.C:
		}
	}
	return zero, err
}

func backoffDelay(opt CallOptions, retry int) time.Duration {
	d := opt.RetryBase << (retry - 1)
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	// jitter to avoid synchronized retries across tasks
	j := float64(d) * opt.RetryJitter
	d += time.Duration(rand.Float64()*2*j - j)
	if d < 0 {
		d = 0
	}
	return d
}
