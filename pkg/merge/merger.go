// Package merge implements the ordered multi-queue merger: the
// synchronization core that collates independent, monotonically
// time-stamped input streams into one globally time-ordered output,
// invoking a per-stream sink in timestamp order.
//
// A Merger is not internally synchronized. All public methods must be
// serialized by the caller, and a sink must never call back into the
// same Merger it was invoked from (see internal/ingest for the pattern
// this repository uses to keep calls serialized from concurrent
// producers).
package merge

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/btree"
	"golang.org/x/time/rate"

	"github.com/sensorfusion/mergeplay/pkg/item"
	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// ErrNotFinished is returned by Close when one or more registered streams
// have not been marked finished, or are finished but still hold queued
// items.
var ErrNotFinished = errors.New("merge: stream(s) not finished")

// treeDegree is an arbitrary, unremarkable B-tree branching factor; the
// collection is small enough in practice that the exact value has no
// measurable effect, it only needs to be >1.
const treeDegree = 32

// Merger dispatches items from multiple registered streams to per-stream
// sinks in non-decreasing global timestamp order. See the package doc and
// spec.md §4 for the exact algorithm.
type Merger struct {
	opts Options

	streams *btree.BTreeG[*streamRecord]
	index   map[streamkey.Key]*streamRecord

	lastDispatched time.Time
	blocker        streamkey.Key
	blockerSet     bool
	everRegistered bool
	stalled        bool

	commonStart map[int64]time.Time

	unknownKeyLimiter *rate.Limiter
	backlogLimiter    *rate.Limiter

	dispatching bool
	closed      bool
}

// NewMerger constructs an empty, immediately usable Merger.
func NewMerger(opts Options) *Merger {
	opts = opts.withDefaults()
	return &Merger{
		opts: opts,
		streams: btree.NewG(treeDegree, func(a, b *streamRecord) bool {
			return a.less(b)
		}),
		index:             make(map[streamkey.Key]*streamRecord),
		commonStart:       make(map[int64]time.Time),
		unknownKeyLimiter: rate.NewLimiter(rate.Every(opts.WarnInterval), opts.WarnBurst),
		backlogLimiter:    rate.NewLimiter(rate.Every(opts.WarnInterval), opts.WarnBurst),
	}
}

// AddStream registers a fresh stream with its bound sink. It panics if key
// is already registered.
func (m *Merger) AddStream(key streamkey.Key, sink SinkFunc) {
	if _, exists := m.index[key]; exists {
		panic(fmt.Sprintf("merge: AddStream: stream %s already registered", key))
	}
	s := newStreamRecord(key, sink)
	m.index[key] = s
	m.streams.ReplaceOrInsert(s)
	m.everRegistered = true
}

// Add pushes item to the stream identified by key and drives dispatch.
// Pushing to an unregistered key is a non-fatal, rate-limited drop.
func (m *Merger) Add(key streamkey.Key, it item.Timestamped) {
	s, ok := m.index[key]
	if !ok {
		if m.unknownKeyLimiter.Allow() {
			m.opts.Logger.Warn("merge: dropping item for unregistered stream", "stream", key.String())
		}
		m.opts.OnDrop(key, "unregistered")
		return
	}

	if last, hasLast := s.peekLast(); hasLast && it.Time().Before(last.Time()) {
		panic(fmt.Sprintf(
			"merge: Add: stream %s received out-of-order item at %s after %s",
			key, it.Time(), last.Time(),
		))
	}

	s.pushBack(it)
	m.dispatch()
}

// MarkStreamFinished flags key as finished and drives dispatch. It panics
// if key is unregistered or already finished.
func (m *Merger) MarkStreamFinished(key streamkey.Key) {
	s, ok := m.index[key]
	if !ok {
		panic(fmt.Sprintf("merge: MarkStreamFinished: stream %s not registered", key))
	}
	if s.finished {
		panic(fmt.Sprintf("merge: MarkStreamFinished: stream %s already finished", key))
	}
	s.finished = true
	m.dispatch()
}

// Flush marks every currently-unfinished stream as finished, draining
// whatever is left to dispatch.
func (m *Merger) Flush() {
	var pending []streamkey.Key
	m.streams.Ascend(func(s *streamRecord) bool {
		if !s.finished {
			pending = append(pending, s.key)
		}
		return true
	})
	for _, key := range pending {
		m.MarkStreamFinished(key)
	}
}

// GetBlocker returns the StreamKey that most recently prevented progress.
// Its value is only meaningful after at least one dispatch stall; callers
// should not consume it beforehand (spec.md §9 Open Question). It panics
// if no stream was ever registered.
func (m *Merger) GetBlocker() streamkey.Key {
	if !m.everRegistered {
		panic("merge: GetBlocker: no streams have ever been registered")
	}
	return m.blocker
}

// IsStalled reports whether dispatch is currently blocked on the stream
// GetBlocker names, having made no progress since. It clears as soon as
// the next dispatch() loop manages to emit or drop an item, or finds no
// stream left in the collection.
func (m *Merger) IsStalled() bool {
	return m.stalled
}

// Backlog returns the current queue length of every registered stream,
// for exporting as a per-stream gauge.
func (m *Merger) Backlog() map[streamkey.Key]int {
	out := make(map[streamkey.Key]int, len(m.index))
	for key, s := range m.index {
		out[key] = s.len()
	}
	return out
}

// Close reports whether every registered stream has been finished and
// drained. Unlike the programmer-error panics elsewhere in this package,
// it returns ErrNotFinished rather than panicking, since "forgot to flush
// before shutdown" is a recoverable condition a caller can act on.
func (m *Merger) Close() error {
	var unfinished []streamkey.Key
	m.streams.Ascend(func(s *streamRecord) bool {
		if !s.finished || s.len() > 0 {
			unfinished = append(unfinished, s.key)
		}
		return true
	})
	if len(unfinished) > 0 {
		return fmt.Errorf("%w: %v", ErrNotFinished, unfinished)
	}
	m.closed = true
	return nil
}

// dispatch runs the scan/decide loop until it halts. It is re-entrant at
// the API boundary (each public mutator calls it once) but must never be
// entered recursively from within a sink callback.
func (m *Merger) dispatch() {
	if m.dispatching {
		panic("merge: re-entrant call into Merger from within a sink callback")
	}
	m.dispatching = true
	defer func() { m.dispatching = false }()

	for {
		candidate, halted := m.scan()
		if halted {
			return
		}
		if candidate == nil {
			if m.streams.Len() != 0 {
				panic("merge: scan produced no candidate from a non-empty stream collection")
			}
			m.stalled = false
			return
		}
		if !m.dispatchOne(candidate) {
			return
		}
		m.stalled = false
	}
}

// scan implements spec.md §4.2 step 1: iterate the stream collection in
// key order, erasing finished-and-empty streams as they're found, and
// either halting on the first non-finished-empty stream or returning the
// stream with the globally smallest head timestamp.
func (m *Merger) scan() (candidate *streamRecord, halted bool) {
	haveCandidate := false
	var candidateTime time.Time
	var toErase []streamkey.Key

	m.streams.Ascend(func(s *streamRecord) bool {
		front, ok := s.peekFront()
		if !ok {
			if s.finished {
				toErase = append(toErase, s.key)
				return true
			}
			m.cannotMakeProgress(s.key)
			halted = true
			return false
		}

		// Every scanned head, not just the eventual candidate, must be
		// non-decreasing relative to the last dispatched time (spec.md §9
		// Open Question: preserve the check at scan time, not just for
		// the chosen candidate).
		if front.Time().Before(m.lastDispatched) {
			panic(fmt.Sprintf(
				"merge: ordering violation: stream %s head time %s precedes last dispatched time %s",
				s.key, front.Time(), m.lastDispatched,
			))
		}

		if !haveCandidate || front.Time().Before(candidateTime) {
			candidate = s
			candidateTime = front.Time()
			haveCandidate = true
		}
		return true
	})

	for _, key := range toErase {
		m.erase(key)
	}

	if halted {
		return nil, true
	}
	if !haveCandidate {
		return nil, false
	}
	return candidate, false
}

// dispatchOne implements spec.md §4.2 steps 3-4 for an already-selected
// candidate stream. It returns false if the engine must halt instead of
// dispatching (the cold, thin, unfinished case).
func (m *Merger) dispatchOne(s *streamRecord) bool {
	front, _ := s.peekFront()
	t := front.Time()
	commonStart := m.commonStartTime(s.key.TrajectoryID)

	if !t.Before(commonStart) {
		// Warm case.
		m.emit(s)
		return true
	}

	if s.len() < 2 {
		if !s.finished {
			m.cannotMakeProgress(s.key)
			return false
		}
		// Cold, thin, finished: treat as warm so a draining stream never
		// stalls forever.
		m.emit(s)
		return true
	}

	// Cold, deep queue: pop and peek the new front to decide whether the
	// popped item is the straddling item to keep or a pre-epoch drop.
	popped := s.popFront()
	next, _ := s.peekFront()
	if next.Time().After(commonStart) {
		m.lastDispatched = popped.Time()
		s.sink(popped)
	} else {
		m.opts.OnDrop(s.key, "pre_epoch")
	}
	return true
}

// emit pops the stream's current front (assumed present) and sinks it,
// advancing lastDispatched.
func (m *Merger) emit(s *streamRecord) {
	it := s.popFront()
	m.lastDispatched = it.Time()
	s.sink(it)
}

// commonStartTime implements spec.md §4.3: the maximum, over every stream
// of traj with a non-empty FIFO at the moment of first touch, of its head
// timestamp. Computed once per trajectory and cached forever.
func (m *Merger) commonStartTime(traj int64) time.Time {
	if t, ok := m.commonStart[traj]; ok {
		return t
	}

	var max time.Time
	found := false
	m.streams.Ascend(func(s *streamRecord) bool {
		if s.key.TrajectoryID != traj {
			return true
		}
		if front, ok := s.peekFront(); ok {
			if !found || front.Time().After(max) {
				max = front.Time()
				found = true
			}
		}
		return true
	})

	m.commonStart[traj] = max
	m.opts.Logger.Info("merge: resolved common start time", "trajectory", traj, "common_start", max)
	return max
}

// cannotMakeProgress implements spec.md §4.3: record the blocker and, if
// any stream's backlog exceeds the soft cap, emit a rate-limited warning.
func (m *Merger) cannotMakeProgress(key streamkey.Key) {
	m.blocker = key
	m.blockerSet = true
	m.stalled = true

	worst := 0
	m.streams.Ascend(func(s *streamRecord) bool {
		if n := s.len(); n > worst {
			worst = n
		}
		return true
	})

	if worst > m.opts.SoftCap && m.backlogLimiter.Allow() {
		m.opts.Logger.Warn("merge: dispatch stalled with growing backlog",
			"blocker", key.String(), "backlog", worst, "soft_cap", m.opts.SoftCap)
	}
}

func (m *Merger) erase(key streamkey.Key) {
	if s, ok := m.index[key]; ok {
		m.streams.Delete(s)
		delete(m.index, key)
	}
}
