package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dydownloader/internal/api"
	"dydownloader/internal/manager"
	"dydownloader/internal/utils"
)

func runServe(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := addCommonFlags(fs)

	port := fs.Int("port", 0, "Port to run the server on (overrides config file and DYDL_PORT)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dydownloader serve [options]

Run the local HTTP API. Finished files are saved to download_path.

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
	if *port > 0 {
		cfg.Port = *port
	}

	if err := os.MkdirAll(cfg.DownloadPath, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create download directory: %v\n", err)
		return ExitConfigError
	}

	ctx := context.Background()

	c, err := newClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	store, closeStore, err := openHistory(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	defer closeStore()

	opts := trackerOptions(cfg)
	opts.Navigator = manager.SaveTo(c, cfg.DownloadPath, nil)
	session := manager.NewSession(c, store, opts)

	router := api.SetupRoutes(api.NewHandler(cfg, session))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server on port %d: %v\n", cfg.Port, err)
		fmt.Fprintln(os.Stderr, "Use -port, DYDL_PORT or the \"port\" config value to pick another port.")
		session.Shutdown()
		return ExitGeneralError
	}

	fmt.Fprintf(stdout, "Backend: %s\n", cfg.ServerURL)
	fmt.Fprintf(stdout, "Download path: %s\n", cfg.DownloadPath)
	fmt.Fprintf(stdout, "History: %s\n", cfg.History.Backend)
	utils.LogSuccess("Server is ready and listening on http://localhost%s", addr)
	fmt.Fprintln(stdout, "Press Ctrl+C to stop the server")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fmt.Fprintf(stdout, "\nReceived %s signal, shutting down gracefully...\n", sig)
	case err := <-serverErrChan:
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		session.Shutdown()
		return ExitGeneralError
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	session.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during server shutdown: %v\n", err)
		return ExitGeneralError
	}

	fmt.Fprintln(stdout, "Server shutdown complete")
	return ExitSuccess
}
