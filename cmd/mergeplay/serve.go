package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sensorfusion/mergeplay/internal/config"
	"github.com/sensorfusion/mergeplay/internal/diagnostics"
	"github.com/sensorfusion/mergeplay/internal/ingest"
	internallog "github.com/sensorfusion/mergeplay/internal/log"
	"github.com/sensorfusion/mergeplay/internal/reaper"
	"github.com/sensorfusion/mergeplay/pkg/item"
	"github.com/sensorfusion/mergeplay/pkg/merge"
	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// instrumentedSink wraps a Merger with the Prometheus gauges that track
// dispatch health, matching the shape of ingest.Sink so it can stand in
// for the Merger without the dispatcher needing to know about metrics
// at all. Dispatched itself is counted where delivery actually happens,
// in the per-stream sink bound at AddStream, not here.
type instrumentedSink struct {
	m       *merge.Merger
	metrics *diagnostics.Metrics
}

func (s *instrumentedSink) Add(key streamkey.Key, it item.Timestamped) {
	s.m.Add(key, it)
	s.refresh()
}

func (s *instrumentedSink) MarkStreamFinished(key streamkey.Key) {
	s.m.MarkStreamFinished(key)
	s.refresh()
}

// refresh samples the merger's backlog and stall gauges after a
// mutation. instrumentedSink's methods only ever run on the dispatcher's
// single serialized consumer goroutine (see internal/ingest), so reading
// Merger state here never races with its concurrent reader goroutines.
func (s *instrumentedSink) refresh() {
	for key, n := range s.m.Backlog() {
		s.metrics.Backlog.WithLabelValues(key.String()).Set(float64(n))
	}
	var stalled float64
	if s.m.IsStalled() {
		stalled = 1
	}
	s.metrics.Stalled.Set(stalled)
}

// dispatcherTracker adapts an ingest.Dispatcher to reaper.Tracker, so
// the reaper's cron goroutine finishes a stream by asking the
// dispatcher's single serialized consumer to do it, rather than calling
// the Merger directly from a second goroutine.
type dispatcherTracker struct {
	d *ingest.Dispatcher
}

func (t dispatcherTracker) MarkStreamFinished(key streamkey.Key) {
	t.d.RequestFinish(key)
}

// NewServeCommand runs the merger against one or more sources read with
// backoff retry, finishes idle streams on a cron schedule, and serves
// Prometheus metrics over HTTP. Each source is read once to its end and
// then finished; data appended to it later is not read. The command
// returns once every source has been read (or its context is cancelled).
func NewServeCommand() *cobra.Command {
	var streamFlags []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the merger against backoff-retried sources, with reaper and metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.NewFromFile(configPath)
			if err != nil {
				return err
			}
			internallog.InitLogger(cfg.LogLevel)

			reg := prometheus.NewRegistry()
			metrics := diagnostics.NewMetrics(reg)

			m := merge.NewMerger(merge.Options{
				SoftCap:      cfg.SoftCap,
				WarnInterval: cfg.WarnInterval,
				WarnBurst:    cfg.WarnBurst,
				OnDrop: func(key streamkey.Key, reason string) {
					metrics.Dropped.WithLabelValues(key.String(), reason).Inc()
				},
			})

			sink := &instrumentedSink{m: m, metrics: metrics}
			dispatcher := ingest.NewDispatcher(sink, 64)

			reap, err := reaper.New(dispatcherTracker{d: dispatcher}, cfg.ReaperSchedule, cfg.ReaperIdleTime, slog.Default())
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			readers := make(map[streamkey.Key]ingest.Reader, len(streamFlags))
			for _, raw := range streamFlags {
				s, err := parseStreamSpec(raw)
				if err != nil {
					return fmt.Errorf("--stream %q: %w", raw, err)
				}
				key := s.key
				m.AddStream(key, func(it item.Timestamped) {
					metrics.Dispatched.WithLabelValues(key.String()).Inc()
					slog.Debug("dispatched item", "stream", key.String(), "ts", it.Time())
				})
				reap.Touch(s.key)
				readers[s.key] = tailingReader(s.path, reap, s.key)
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", diagnostics.Handler(reg))
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("metrics server failed", "error", err)
				}
			}()
			defer srv.Close()

			reap.Start()
			defer reap.Stop()

			if err := dispatcher.Run(cmd.Context(), readers); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			m.Flush()
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&streamFlags, "stream", nil, "trajectory:sensor:path, repeatable")
	return cmd
}

// tailingReader retries the recording at path with backoff, touching the
// reaper on every successfully read record so idle detection reflects
// actual data flow rather than wall-clock since process start.
func tailingReader(path string, reap *reaper.Reaper, key streamkey.Key) ingest.Reader {
	return func(ctx context.Context, _ streamkey.Key, push func(item.Timestamped)) error {
		open := func(context.Context) (io.ReadCloser, error) {
			return ingest.OpenRecording(path)
		}
		return ingest.TailWithBackoff(ctx, open, ingest.DefaultBackoff, func(rec item.Record) {
			reap.Touch(key)
			push(rec)
		})
	}
}
