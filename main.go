package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagecheck/browser"
	"pagecheck/logger"
)

func main() {
	// Create context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.S().Warnf("Received signal: %v, shutting down gracefully", sig)
		cancel()
		// Give the browser session time to release, then exit if it hangs
		time.Sleep(5 * time.Second)
		browser.StopDockerChrome()
		os.Exit(1)
	}()

	if err := newRootCmd(ctx, os.Stdout).Execute(); err != nil {
		logger.S().Errorf("pagecheck failed: %v", err)
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
