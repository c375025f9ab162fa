package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"

	"chat-hub/auth"
	"chat-hub/domain/event"
	"chat-hub/emojize"
	"chat-hub/infrastructure/ws"
	"chat-hub/internal"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for HTTP and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) && config.DebugPort > 0 {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, messageMapper)
	}

	repository, err := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		_ = repository.Close()
	}()

	// 3. Core wiring: registry, fan-out, presence, dispatch
	telemetryChan := make(chan event.Event, config.BufferSize)
	registry := runtime.NewChannelRegistry()
	router := runtime.NewFanoutRouter(logger, registry, telemetryChan)
	sessions := auth.NewSessionStore()
	coordinator := runtime.NewPresenceCoordinator(logger, registry, router, sessions)

	expander, err := emojize.NewExpander()
	if err != nil {
		return exitRuntime, fmt.Errorf("emoji automaton: %w", err)
	}
	dispatcher := runtime.NewDispatcher(logger, sessions, coordinator, router,
		repository, expander, config.MaxContentLength)
	chatService := services.NewChatService(registry, coordinator, repository)

	// 4. Supervision & background workers
	handlers := []event.Handler{
		event.NewDeliveryHandler(logger, config.LatencyThreshold),
		event.NewChannelCapacityHandler(logger, config.LowCapacityThreshold),
		event.NewHeartbeatHandler(logger),
	}
	watched := []workers.NamedChannel{{Name: "telemetry", Channel: telemetryChan}}
	sup := workers.NewSupervisor(logger, config.RestartInterval).
		Add(workers.NewTelemetryWorker(logger, telemetryChan, handlers)).
		Add(workers.NewChannelCapacityWorker(logger, watched, telemetryChan, config.MetricInterval)).
		Add(workers.NewHeartbeatWorker(logger, telemetryChan, config.HeartbeatInterval))

	// 5. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 6. HTTP & websocket server
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	wsServer := ws.NewServer(logger, dispatcher, router, chatService,
		sessions, tokens, config.ConnectionBufferSize)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: wsServer.Handler()}

	// Use an error channel to capture Serve() issues asynchronously.
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// messageMapper renders stored rows in the debug inspector: message
// records get their decoded content, reaction keys are self-describing.
func messageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case len(key) > 4 && key[:4] == "msg:":
		record, err := repositories.DecodeMessage(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("[%s] %s: %s", record.Channel, record.Author, record.Content)
	case len(key) > 6 && key[:6] == "react:":
		row.Type = "REACTION"
		row.Detail = string(val)
	}
	return row
}
