// Package reaper runs the scheduled sweep that finishes streams the
// producers stopped feeding without calling MarkStreamFinished: a cron
// job, in the shape of the teacher's internal/agent.Scheduler, that
// checks each registered stream's idle time and finishes it once it
// has gone quiet for longer than the configured threshold.
package reaper

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sensorfusion/mergeplay/pkg/merge"
	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// Tracker is implemented by pkg/merge.Merger's caller: it must serialize
// calls the same way every other mutator on the Merger is serialized,
// since the reaper's cron callback runs on its own goroutine.
type Tracker interface {
	MarkStreamFinished(key streamkey.Key)
}

// Reaper watches the last-touched time of each registered stream and
// finishes it once idle longer than IdleTimeout. It exists because the
// merger itself has no notion of wall-clock time or timeouts: it is
// purely driven by the timestamps it's given, so something has to stand
// in for "this sensor stopped publishing".
type Reaper struct {
	mu          sync.Mutex
	lastTouched map[streamkey.Key]time.Time
	finished    map[streamkey.Key]bool

	tracker     Tracker
	idleTimeout time.Duration
	logger      *slog.Logger

	cron *cron.Cron
}

// New builds a Reaper bound to tracker. schedule is a standard cron
// expression (e.g. "@every 30s"); an empty schedule registers no sweep,
// so the reaper never finishes a stream. idleTimeout is how long a stream
// may go untouched before being finished.
func New(tracker Tracker, schedule string, idleTimeout time.Duration, logger *slog.Logger) (*Reaper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		lastTouched: make(map[streamkey.Key]time.Time),
		finished:    make(map[streamkey.Key]bool),
		tracker:     tracker,
		idleTimeout: idleTimeout,
		logger:      logger,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if schedule != "" {
		if _, err := c.AddFunc(schedule, r.sweep); err != nil {
			return nil, fmt.Errorf("reaper: schedule %q: %w", schedule, err)
		}
	}
	r.cron = c
	return r, nil
}

// Touch records that key just received an item or was registered. It is
// guarded by the reaper's own mutex, so any goroutine may call it.
func (r *Reaper) Touch(key streamkey.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTouched[key] = time.Now()
}

// MarkFinished removes key from consideration once it finishes by any
// other means (EOF, explicit flush), so the reaper never double-finishes it.
func (r *Reaper) MarkFinished(key streamkey.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[key] = true
}

// Start begins the cron schedule.
func (r *Reaper) Start() {
	r.logger.Info("reaper started", "idle_timeout", r.idleTimeout)
	r.cron.Start()
}

// Stop halts the cron schedule and waits for any in-flight sweep.
func (r *Reaper) Stop() {
	r.logger.Info("reaper stopping")
	<-r.cron.Stop().Done()
}

func (r *Reaper) sweep() {
	now := time.Now()

	r.mu.Lock()
	var idle []streamkey.Key
	for key, touched := range r.lastTouched {
		if r.finished[key] {
			continue
		}
		if now.Sub(touched) >= r.idleTimeout {
			idle = append(idle, key)
		}
	}
	for _, key := range idle {
		r.finished[key] = true
	}
	r.mu.Unlock()

	for _, key := range idle {
		r.logger.Warn("reaper finishing idle stream", "stream", key.String(), "idle_timeout", r.idleTimeout)
		r.tracker.MarkStreamFinished(key)
	}
}

var _ Tracker = (*merge.Merger)(nil)
