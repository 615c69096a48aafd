package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sensorfusion/mergeplay/pkg/item"
)

// OpenFunc opens a fresh readable handle to a stream's source, e.g.
// OpenRecording bound to a path, or a network dial for a live feed.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// TailWithBackoff reads everything available from open, and if opening or
// reading fails with any error (including a malformed line), retries from
// a fresh open with an exponential backoff instead of failing the whole
// stream outright. It returns once one attempt reads the source to its
// end; data appended to the source after that is not read.
// newBackoff lets callers share backoff.NewExponentialBackOff's defaults
// or tune them; a nil newBackoff disables retries.
func TailWithBackoff(
	ctx context.Context,
	open OpenFunc,
	newBackoff func() backoff.BackOff,
	push func(item.Record),
) error {
	read := func() error {
		r, err := open(ctx)
		if err != nil {
			return fmt.Errorf("ingest: open source: %w", err)
		}
		defer r.Close()

		return ReadRecords(ctx, r, func(rec item.Record) error {
			push(rec)
			return nil
		})
	}

	if newBackoff == nil {
		return read()
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := read()
		if err != nil {
			return fmt.Errorf("attempt %d: %w", attempt, err)
		}
		return nil
	}, backoff.WithContext(newBackoff(), ctx))
}

// DefaultBackoff mirrors the retry profile used elsewhere for
// reconnecting to an intermittently available source: exponential,
// capped at 30s between attempts, retried indefinitely until ctx is
// cancelled.
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = 30 * time.Second
	return b
}
