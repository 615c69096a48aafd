package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internallog "github.com/sensorfusion/mergeplay/internal/log"
)

func main() {
	internallog.InitLoggerFromEnv()

	cmd := &cobra.Command{
		Use:           "mergeplay",
		Short:         "Ordered multi-queue merger for recorded sensor streams.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "mergeplay.toml", "Path to the TOML config file")

	cmd.AddCommand(NewReplayCommand())
	cmd.AddCommand(NewServeCommand())

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		slog.Info("received signal, stopping", "signal", sig)
		cancel()
	}()

	cobra.CheckErr(cmd.ExecuteContext(ctx))
}
