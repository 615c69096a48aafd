package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorfusion/mergeplay/pkg/item"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestTailWithBackoff_NoRetryReadsOnce(t *testing.T) {
	t.Parallel()

	opens := 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		return nopCloser{bytes.NewBufferString("{\"ts\":1,\"payload\":null}\n")}, nil
	}

	var got []item.Record
	err := TailWithBackoff(context.Background(), open, nil, func(r item.Record) {
		got = append(got, r)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, opens)
	assert.Len(t, got, 1)
}

func TestTailWithBackoff_RetriesOnOpenFailure(t *testing.T) {
	t.Parallel()

	opens := 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		if opens < 3 {
			return nil, errors.New("source unavailable")
		}
		return nopCloser{bytes.NewBufferString("{\"ts\":1,\"payload\":null}\n")}, nil
	}

	fastBackoff := func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Millisecond
		b.MaxInterval = 2 * time.Millisecond
		b.MaxElapsedTime = time.Second
		return b
	}

	var got []item.Record
	err := TailWithBackoff(context.Background(), open, fastBackoff, func(r item.Record) {
		got = append(got, r)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, opens)
	assert.Len(t, got, 1)
}
