package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do"

	"ghiblify/internal/inject"
	"ghiblify/internal/log"
	"ghiblify/internal/server"
)

func main() {
	logger := log.New(os.Stderr, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	appCtx := log.NewContext(context.Background(), logger)

	injector := inject.Setup(appCtx)
	srv := do.MustInvoke[*server.Server](injector)

	ctx, stop := signal.NotifyContext(appCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The server runs off the uncancelled app context so a termination
	// signal drains in-flight requests instead of aborting them.
	errs := make(chan error, 1)
	go func() { errs <- srv.Start(appCtx) }()

	select {
	case err := <-errs:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(log.NewContext(shutdownCtx, logger)); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}

	_ = injector.Shutdown()
}
