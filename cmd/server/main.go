// Command server runs the Lumen interaction engine API.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lumen/internal/bootstrap"
	"lumen/internal/config"
	"lumen/internal/middleware"
	"lumen/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true, Tracing: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	rt.Start(ctx, true)

	srv := server.NewServer(cfg, rt.ServerDeps())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			middleware.Logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
		}
		if err := rt.Close(shutdownCtx); err != nil {
			middleware.Logger.Error("Runtime shutdown error", slog.String("error", err.Error()))
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	<-done
	middleware.Logger.Info("Server shutdown complete")
}
