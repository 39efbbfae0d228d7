// Package roundtrip bounds calls into the external coordinator by a timeout
// that holds even when the coordinator ignores its context.
package roundtrip

import (
	"context"
	"errors"
	"time"

	"github.com/bft-labs/usercoord/internal/metrics"
)

// ErrTimeout is returned when the coordinator did not answer in time.
var ErrTimeout = errors.New("coordinator request timed out")

// Do runs fn with a context bounded by timeout and returns its answer, or
// ErrTimeout once the timeout elapses. A late answer is discarded. When fn
// fails its partial answer is returned along with the error. The outcome is
// recorded under op.
func Do[T any](ctx context.Context, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type answer struct {
		v   T
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan answer, 1)
	go func() {
		v, err := fn(ctx)
		ch <- answer{v: v, err: err}
	}()

	var zero T
	select {
	case a := <-ch:
		if a.err != nil {
			if errors.Is(a.err, context.DeadlineExceeded) {
				metrics.ObserveCoordinator(op, "timeout", time.Since(start))
				return zero, ErrTimeout
			}
			metrics.ObserveCoordinator(op, "error", time.Since(start))
			return a.v, a.err
		}
		metrics.ObserveCoordinator(op, "ok", time.Since(start))
		return a.v, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ObserveCoordinator(op, "timeout", time.Since(start))
			return zero, ErrTimeout
		}
		metrics.ObserveCoordinator(op, "error", time.Since(start))
		return zero, ctx.Err()
	}
}
