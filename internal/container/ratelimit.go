package container

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurst bounds a single limiter reservation.
const maxBurst = 1 << 20

// NewBWLimiter returns a limiter that meters archive output at bytesPerSec.
// The burst is the smaller of the rate and maxBurst.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(min(bytesPerSec, maxBurst)))
}

type throttledWriter struct {
	ctx context.Context
	dst io.Writer
	lim *rate.Limiter
}

// newRateLimitedWriter throttles writes to dst through lim. With a nil
// limiter dst is returned as is.
func newRateLimitedWriter(ctx context.Context, dst io.Writer, lim *rate.Limiter) io.Writer {
	if lim == nil {
		return dst
	}
	return &throttledWriter{ctx: ctx, dst: dst, lim: lim}
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	// WaitN rejects n above the burst.
	var total int
	for chunk := range chunks(p, t.lim.Burst()) {
		if err := t.lim.WaitN(t.ctx, len(chunk)); err != nil {
			return total, err
		}
		n, err := t.dst.Write(chunk)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func chunks(p []byte, size int) func(yield func([]byte) bool) {
	return func(yield func([]byte) bool) {
		for len(p) > 0 {
			n := min(len(p), size)
			if !yield(p[:n]) {
				return
			}
			p = p[n:]
		}
	}
}
