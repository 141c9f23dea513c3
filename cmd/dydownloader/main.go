package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"dydownloader/internal/client"
	"dydownloader/internal/config"
	"dydownloader/internal/history"
	"dydownloader/internal/tracker"
	"dydownloader/internal/utils"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitConfigError   = 3
	ExitBackendError  = 4
	ExitDownloadError = 5
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "get":
		return runGet(cmdArgs, stdout)
	case "history":
		return runHistory(cmdArgs, stdout)
	case "serve":
		return runServe(cmdArgs, stdout)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: dydownloader <command> [options]

Commands:
  get       Fetch video info, start a download and save the file when done
  history   Show or clear the download history
  serve     Run the local HTTP API

Run 'dydownloader <command> -h' for command-specific help.`)
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath *string
	server     *string
	verbose    *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "config.json", "Path to configuration file (.json, .yaml or .yml)"),
		server:     fs.String("server", "", "Backend URL (overrides config file and DYDL_SERVER)"),
		verbose:    fs.Bool("v", false, "Verbose logging"),
	}
}

// loadConfig applies file, environment and flag settings in that order.
func (c commonFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if *c.server != "" {
		cfg.ServerURL = *c.server
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	utils.SetVerboseLogging(cfg.VerboseLogging || *c.verbose)
	return cfg, nil
}

func newClient(cfg *config.Config) (*client.Client, error) {
	opts := client.DefaultOptions()
	opts.Timeout = cfg.RequestTimeout()
	opts.RetryAttempts = cfg.RetryAttempts
	return client.New(cfg.ServerURL, opts)
}

// openHistory opens the configured history store. The returned func closes
// the backend.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, func(), error) {
	storage, closer, err := history.Open(ctx, cfg.History)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return history.NewStore(storage), func() { closer.Close() }, nil
}

func trackerOptions(cfg *config.Config) tracker.Options {
	return tracker.Options{
		FastInterval:  cfg.Polling.FastInterval(),
		SlowInterval:  cfg.Polling.SlowInterval(),
		FastTicks:     cfg.Polling.FastTicks,
		NavigateDelay: cfg.Polling.NavigateDelay(),
	}
}
