package reaper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

type fakeTracker struct {
	mu     sync.Mutex
	marked []streamkey.Key
}

func (f *fakeTracker) MarkStreamFinished(key streamkey.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, key)
}

func (f *fakeTracker) markedKeys() []streamkey.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]streamkey.Key, len(f.marked))
	copy(out, f.marked)
	return out
}

func TestReaper_SweepFinishesIdleStream(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{}
	r, err := New(tracker, "@every 1h", time.Millisecond, nil)
	require.NoError(t, err)

	key := streamkey.New(1, "lidar")
	r.Touch(key)
	time.Sleep(5 * time.Millisecond)

	r.sweep()

	assert.Equal(t, []streamkey.Key{key}, tracker.markedKeys())
}

func TestReaper_SweepSkipsFreshStream(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{}
	r, err := New(tracker, "@every 1h", time.Hour, nil)
	require.NoError(t, err)

	key := streamkey.New(1, "lidar")
	r.Touch(key)
	r.sweep()

	assert.Empty(t, tracker.markedKeys())
}

func TestReaper_SweepSkipsAlreadyFinished(t *testing.T) {
	t.Parallel()

	tracker := &fakeTracker{}
	r, err := New(tracker, "@every 1h", time.Millisecond, nil)
	require.NoError(t, err)

	key := streamkey.New(1, "lidar")
	r.Touch(key)
	r.MarkFinished(key)
	time.Sleep(5 * time.Millisecond)

	r.sweep()

	assert.Empty(t, tracker.markedKeys())
}
