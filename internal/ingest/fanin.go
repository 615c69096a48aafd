package ingest

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sensorfusion/mergeplay/pkg/item"
	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// Sink is the subset of pkg/merge.Merger that a Dispatcher drives. All
// calls onto it must come from a single goroutine, which is exactly
// what Dispatcher.Run guarantees.
type Sink interface {
	Add(key streamkey.Key, it item.Timestamped)
	MarkStreamFinished(key streamkey.Key)
}

// record pairs a decoded item with the stream it belongs to, the unit
// that flows through Dispatcher's serialization channel.
type record struct {
	key  streamkey.Key
	item item.Timestamped
	done bool // true means key should be finished
}

// Dispatcher fans multiple concurrent per-stream readers into a single
// goroutine that owns the Merger, satisfying the merger's caller-side
// serialization requirement even though each stream is read by its own
// goroutine in parallel. RequestFinish additionally lets a goroutine
// external to any reader (e.g. internal/reaper's cron callback) finish
// a stream without itself touching the Merger.
type Dispatcher struct {
	sink Sink
	ch   chan record

	mu     sync.Mutex
	closed bool
}

// NewDispatcher builds a Dispatcher that will drive sink. bufSize bounds
// how far readers can run ahead of the single serializing goroutine.
func NewDispatcher(sink Sink, bufSize int) *Dispatcher {
	return &Dispatcher{sink: sink, ch: make(chan record, bufSize)}
}

// Reader is one stream's read loop: it pushes every decoded item onto
// the dispatcher's channel via push, never touching the Merger directly.
type Reader func(ctx context.Context, key streamkey.Key, push func(item.Timestamped)) error

// RequestFinish asks the dispatcher's single consumer goroutine to
// finish key, from any goroutine, at any time before Run returns. It is
// a no-op once Run has begun shutting down.
func (d *Dispatcher) RequestFinish(key streamkey.Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.ch <- record{key: key, done: true}
}

// Run starts one goroutine per reader via an errgroup, plus the single
// serializing consumer goroutine that calls into the Merger. It returns
// once every reader has returned and the channel has drained; the first
// reader error cancels the context the other readers receive and is the
// error Run returns.
func (d *Dispatcher) Run(ctx context.Context, readers map[streamkey.Key]Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	for key, read := range readers {
		key, read := key, read
		g.Go(func() error {
			push := func(it item.Timestamped) {
				d.ch <- record{key: key, item: it}
			}
			if err := read(ctx, key, push); err != nil {
				return fmt.Errorf("ingest: reader for stream %s: %w", key, err)
			}
			d.RequestFinish(key)
			return nil
		})
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		finished := make(map[streamkey.Key]bool)
		for rec := range d.ch {
			if rec.done {
				if finished[rec.key] {
					continue
				}
				finished[rec.key] = true
				d.sink.MarkStreamFinished(rec.key)
				continue
			}
			d.sink.Add(rec.key, rec.item)
		}
	}()

	err := g.Wait()

	d.mu.Lock()
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	<-consumerDone
	return err
}
