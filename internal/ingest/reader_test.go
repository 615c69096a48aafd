package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorfusion/mergeplay/pkg/item"
)

func TestReadRecords_DecodesLines(t *testing.T) {
	t.Parallel()

	input := `{"ts":1,"payload":{"a":1}}
{"ts":2,"payload":{"b":2}}
`
	var got []item.Record
	err := ReadRecords(context.Background(), bytes.NewBufferString(input), func(r item.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].TimestampNanos)
	assert.Equal(t, int64(2), got[1].TimestampNanos)
}

func TestReadRecords_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	input := "{\"ts\":1,\"payload\":null}\n\n{\"ts\":2,\"payload\":null}\n"
	var got []item.Record
	err := ReadRecords(context.Background(), bytes.NewBufferString(input), func(r item.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadRecords_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := "{\"ts\":1,\"payload\":null}\n"
	err := ReadRecords(ctx, bytes.NewBufferString(input), func(item.Record) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenRecording_DecompressesGzip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "stream.ndjson.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("{\"ts\":5,\"payload\":null}\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	rc, err := OpenRecording(path)
	require.NoError(t, err)
	defer rc.Close()

	var got []item.Record
	err = ReadRecords(context.Background(), rc, func(r item.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].TimestampNanos)
}

func TestOpenRecording_PlainFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "stream.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("{\"ts\":1,\"payload\":null}\n"), 0o644))

	rc, err := OpenRecording(path)
	require.NoError(t, err)
	defer rc.Close()

	var got []item.Record
	err = ReadRecords(context.Background(), rc, func(r item.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
