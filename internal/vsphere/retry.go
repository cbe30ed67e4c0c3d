// Shoal is a Redfish aggregator service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package vsphere

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"shoal/internal/bridgeerr"
	"shoal/internal/ctxkeys"
	"shoal/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 4 * time.Second
	defaultJitterFrac  = 0.3
)

// withRetry runs fn (one vSphere RPC) with exponential backoff up to a fixed
// attempt cap, per spec.md §4.1. Exhausting retries returns
// bridgeerr.ErrUpstreamUnavailable wrapping the last error; callers never
// see the raw govmomi/soap error.
func withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		start := time.Now()
		err := fn(ctx)
		metrics.ObserveVsphereCall(op, start, err)

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			break
		}

		if attempt < defaultMaxAttempts {
			metrics.IncVsphereRetry(op)
			sleep := backoffDelay(attempt)
			cid := ctxkeys.GetCorrelationID(ctx)
			slog.Debug("vsphere retry", "op", op, "attempt", attempt, "sleep", sleep, "err", lastErr, "correlation_id", cid)

			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return wrapUpstreamUnavailable(op, lastErr)
}

func wrapUpstreamUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &upstreamError{op: op, cause: err}
}

type upstreamError struct {
	op    string
	cause error
}

func (e *upstreamError) Error() string {
	return "vsphere op " + e.op + " failed after retries: " + e.cause.Error()
}

func (e *upstreamError) Unwrap() error {
	return errors.Join(bridgeerr.ErrUpstreamUnavailable, e.cause)
}

func backoffDelay(attempt int) time.Duration {
	exp := attempt - 1
	if exp > 10 {
		exp = 10
	}
	backoff := defaultBaseDelay * (1 << exp)
	if backoff > defaultMaxDelay {
		backoff = defaultMaxDelay
	}
	jitter := time.Duration(rand.Float64() * defaultJitterFrac * float64(backoff))
	return backoff - time.Duration(defaultJitterFrac*float64(backoff)/2) + jitter
}

// isRetryable treats network timeouts and connection errors as transient;
// anything else (auth failure, malformed request) fails fast.
func isRetryable(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, errConnectionLost)
}

var errConnectionLost = errors.New("vsphere connection lost")
