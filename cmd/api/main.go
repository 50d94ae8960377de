// Package main provides the entry point for the OCR mapper server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/parishrecords/ocrmapper/internal/di"
	"github.com/parishrecords/ocrmapper/internal/logger"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container shuts handles down in reverse dependency order: the
	// HTTP server stops first and the store drains its write queue last.
	if err := injector.Shutdown(); err != nil {
		log.Fatal("Shutdown error", "error", err)
	}

	log.Info("Shutdown complete")
}
