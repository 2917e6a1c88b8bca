package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"
)

const (
	// maxResolveAttempts bounds the total number of fetches one Resolve
	// call may issue, whatever mix of outcomes those fetches have.
	maxResolveAttempts = 30

	// maxTransientAttempts bounds how deep into the attempt budget a
	// not-found or network failure is still treated as transient. It is
	// a position within the shared counter, not a second budget.
	maxTransientAttempts = 5
)

// ErrResolveTimeout reports that the polling budget ran out while the record
// was still in flight. The job may yet settle; the caller stopped watching.
// It is deliberately distinct from a record with status failed, which Resolve
// returns as a regular outcome.
var ErrResolveTimeout = errors.New("prediction still in flight after polling budget")

// Resolve polls the record until it reaches a terminal status, the attempt
// budget runs out, or ctx is canceled. Lookups that fail with not-found or a
// network error within the first attempts are retried after a short pause,
// absorbing store propagation lag right after submission. A terminal record
// is merged into the client's history before it is returned.
func (c *Client) Resolve(ctx context.Context, id string) (*Record, error) {
	var lastStatus Status

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		rec, err := c.Prediction(ctx, id)
		if err != nil {
			if !isTransientResolveError(err) || attempt >= maxTransientAttempts {
				return nil, fmt.Errorf("resolve prediction %s: %w", id, err)
			}
			if err := c.sleep(ctx, c.transientWait); err != nil {
				return nil, err
			}
			continue
		}

		if rec.Status.Terminal() {
			c.history.merge(*rec)
			return rec, nil
		}

		lastStatus = rec.Status
		if attempt < maxResolveAttempts {
			if err := c.sleep(ctx, c.pollWait); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w: prediction %s still %s after %d attempts",
		ErrResolveTimeout, id, lastStatus, maxResolveAttempts)
}

// SubmitAndResolve uploads a recording and waits for its classification
// outcome in one call.
func (c *Client) SubmitAndResolve(ctx context.Context, filename, contentType string, audio io.Reader) (*Record, error) {
	rec, err := c.Submit(ctx, filename, contentType, audio)
	if err != nil {
		return nil, err
	}
	return c.Resolve(ctx, rec.ID)
}

// sleep waits for d without leaking the timer when ctx ends first.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransientResolveError classifies a lookup failure. Not-found is
// presumed to be propagation lag, server-side 5xx and transport-level
// failures are presumed to pass. Context cancellation is never transient.
func isTransientResolveError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
