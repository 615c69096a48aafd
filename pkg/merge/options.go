package merge

import (
	"log/slog"
	"time"

	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// defaultSoftCap is the backlog size, per spec.md §4.3, above which a
// stalled stream triggers a diagnostic warning. It is purely diagnostic:
// exceeding it never blocks or drops data.
const defaultSoftCap = 500

// Options configures a Merger. The zero value is usable; NewMerger fills
// in defaults for anything left unset.
type Options struct {
	// SoftCap is the per-stream backlog size above which cannotMakeProgress
	// logs a warning naming the current blocker. Defaults to 500.
	SoftCap int
	// WarnInterval is the minimum spacing between rate-limited diagnostic
	// warnings (unknown-stream drops, backlog growth). Defaults to 1s.
	WarnInterval time.Duration
	// WarnBurst is the token-bucket burst size backing the rate limiters.
	// Defaults to 1.
	WarnBurst int
	// Logger receives the merger's structured diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// OnDrop, if set, is called whenever the merger discards an item instead
	// of ever dispatching it: an unregistered stream key in Add, or, during
	// any dispatch (from Add, MarkStreamFinished or Flush), a cold-path
	// pre-epoch item superseded by spec.md §4.3's straddling-item rule.
	// Defaults to a no-op; set it to count drops without coupling this
	// package to a particular metrics library.
	OnDrop func(key streamkey.Key, reason string)
}

func (o Options) withDefaults() Options {
	if o.SoftCap <= 0 {
		o.SoftCap = defaultSoftCap
	}
	if o.WarnInterval <= 0 {
		o.WarnInterval = time.Second
	}
	if o.WarnBurst <= 0 {
		o.WarnBurst = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnDrop == nil {
		o.OnDrop = func(streamkey.Key, string) {}
	}
	return o
}
