package core

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const copyBufferSize = 32 * 1024

// rateLimitedReader caps reads at a number of bytes per second.
type rateLimitedReader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *rate.Limiter
}

func newRateLimitedReader(ctx context.Context, reader io.Reader, maxBytesPerSecond int64) *rateLimitedReader {
	burst := copyBufferSize
	if maxBytesPerSecond < int64(burst) {
		burst = int(maxBytesPerSecond)
	}
	if burst < 1 {
		burst = 1
	}

	return &rateLimitedReader{
		ctx:     ctx,
		reader:  reader,
		limiter: rate.NewLimiter(rate.Limit(maxBytesPerSecond), burst),
	}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

// idleTimeoutReader calls abort when no data arrives for timeout and then
// reports errIdleTimeout instead of whatever error the aborted read returned.
type idleTimeoutReader struct {
	reader  io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleTimeoutReader(reader io.Reader, timeout time.Duration, abort func()) *idleTimeoutReader {
	r := &idleTimeoutReader{reader: reader, timeout: timeout}
	r.timer = time.AfterFunc(timeout, func() {
		r.expired.Store(true)
		abort()
	})
	return r
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if r.expired.Load() {
		return n, errIdleTimeout
	}
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleTimeoutReader) Stop() {
	r.timer.Stop()
}
