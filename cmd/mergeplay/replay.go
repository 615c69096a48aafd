package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sensorfusion/mergeplay/internal/config"
	"github.com/sensorfusion/mergeplay/internal/ingest"
	internallog "github.com/sensorfusion/mergeplay/internal/log"
	"github.com/sensorfusion/mergeplay/pkg/item"
	"github.com/sensorfusion/mergeplay/pkg/merge"
	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// streamSpec is one --stream flag value: trajectory:sensor:path, where
// path may end in .gz for a gzip-compressed recording.
type streamSpec struct {
	key  streamkey.Key
	path string
}

func parseStreamSpec(raw string) (streamSpec, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return streamSpec{}, fmt.Errorf("expected trajectory:sensor:path, got %q", raw)
	}
	traj, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return streamSpec{}, fmt.Errorf("parse trajectory id %q: %w", parts[0], err)
	}
	return streamSpec{key: streamkey.New(traj, parts[1]), path: parts[2]}, nil
}

// fileReader returns an ingest.Reader that replays the recording at path
// in full, then returns. It ignores key, since the path already names
// the stream it belongs to.
func fileReader(path string) ingest.Reader {
	return func(ctx context.Context, _ streamkey.Key, push func(item.Timestamped)) error {
		rc, err := ingest.OpenRecording(path)
		if err != nil {
			return err
		}
		defer rc.Close()

		return ingest.ReadRecords(ctx, rc, func(rec item.Record) error {
			push(rec)
			return nil
		})
	}
}

// NewReplayCommand replays a fixed set of recorded streams through a
// Merger and writes the merged output as newline-delimited JSON to
// stdout, one line per dispatched item.
func NewReplayCommand() *cobra.Command {
	var streamFlags []string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Merge recorded per-stream files into one time-ordered output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.NewFromFile(configPath)
			if err != nil {
				return err
			}
			internallog.InitLogger(cfg.LogLevel)

			if len(streamFlags) == 0 {
				return fmt.Errorf("at least one --stream trajectory:sensor:path is required")
			}

			enc := json.NewEncoder(os.Stdout)
			m := merge.NewMerger(merge.Options{
				SoftCap:      cfg.SoftCap,
				WarnInterval: cfg.WarnInterval,
				WarnBurst:    cfg.WarnBurst,
			})

			readers := make(map[streamkey.Key]ingest.Reader, len(streamFlags))
			for _, raw := range streamFlags {
				s, err := parseStreamSpec(raw)
				if err != nil {
					return fmt.Errorf("--stream %q: %w", raw, err)
				}
				m.AddStream(s.key, func(it item.Timestamped) {
					_ = enc.Encode(it.(item.Record))
				})
				readers[s.key] = fileReader(s.path)
			}

			dispatcher := ingest.NewDispatcher(m, 64)
			if err := dispatcher.Run(cmd.Context(), readers); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			m.Flush()
			if err := m.Close(); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&streamFlags, "stream", nil, "trajectory:sensor:path, repeatable")
	return cmd
}
