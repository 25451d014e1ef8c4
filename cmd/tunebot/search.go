package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tunebot/internal/app"
	"tunebot/internal/telemetry"
	"tunebot/pkg/logx"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <terms...>",
	Short: "Search YouTube through the extractor and print the hits",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := app.NewConfigManager(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	p, err := app.NewPipeline(cfg, telemetry.New(), logx.NewConsole("WARN"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hits, err := p.Search(ctx, strings.Join(args, " "), searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, h := range hits {
		fmt.Printf("%s  %-8s  %s\n", h.ID, h.Duration, h.Title)
	}
	return nil
}
