package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"dydownloader/internal/ui"
)

func runHistory(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	common := addCommonFlags(fs)

	clearAll := fs.Bool("clear", false, "Remove all history entries")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dydownloader history [options]

Show completed downloads, newest first. At most 50 are kept.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx := context.Background()
	store, closeStore, err := openHistory(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	defer closeStore()

	renderer := ui.NewRenderer(stdout)

	if *clearAll {
		store.Clear(ctx)
		renderer.Println("History cleared.")
		return ExitSuccess
	}

	renderer.Println(renderer.History(store.List(ctx)))
	return ExitSuccess
}
