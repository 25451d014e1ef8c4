package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tunebot/internal/app"
	"tunebot/internal/download"
	"tunebot/internal/telemetry"
	"tunebot/pkg/logx"
)

var (
	fetchVideo bool
	fetchLevel string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <link or id>",
	Short: "Resolve one track through the download pipeline and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchVideo, "video", false, "fetch video instead of audio")
	fetchCmd.Flags().StringVar(&fetchLevel, "log-level", "INFO", "console log level")
}

func runFetch(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := app.NewConfigManager(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	id, ok := app.ExtractVideoID(args[0])
	if !ok {
		return fmt.Errorf("not a YouTube link or video id: %q", args[0])
	}

	counters := telemetry.New()
	p, err := app.NewPipeline(cfg, counters, logx.NewConsole(fetchLevel))
	if err != nil {
		return err
	}

	f := download.FormatAudio
	if fetchVideo {
		f = download.FormatVideo
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	res, err := p.Resolve(ctx, download.TrackRequest{ExternalID: id, Format: f})
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	fmt.Printf("Fetched %s (%s)\n", id, f)
	fmt.Printf("  Tier: %s\n", res.Tier)
	fmt.Printf("  File: %s\n", res.FilePath)
	fmt.Printf("  Size: %s\n", humanize.IBytes(uint64(res.SizeBytes)))
	fmt.Printf("  Took: %s\n", time.Since(start).Truncate(time.Millisecond))
	fmt.Println()
	fmt.Print(counters.Snapshot().Format())
	return nil
}
