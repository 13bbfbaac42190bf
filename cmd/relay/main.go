package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/http/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Returning instead of exiting lets the deferred closes of Badger and Bluge run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, MessageMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Services
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	verifier := auth.NewJWTVerifier(tokens)
	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)
	messageIndex := repositories.NewMessageIndex(blugeWriter, logger)
	messageService := services.NewMessageService(logger, messageRepository, messageIndex, config.PersistTimeout)
	authService := services.NewAuthService(userRepository, tokens)

	moderator, err := buildModerator(config, logger)
	if err != nil {
		return exitConfig, err
	}

	// 4. Realtime core
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(logger, registry)
	origins := server.NewOriginPolicy(logger, config.Origins())
	gateway := server.NewGateway(logger, verifier, registry, router, origins, server.GatewayConfig{
		HandshakeTimeout:  config.HandshakeTimeout,
		SessionBufferSize: config.SessionBufferSize,
		MaxMessageSize:    config.MaxMessageSize,
		PingInterval:      server.DefaultGatewayConfig().PingInterval,
		PongWait:          server.DefaultGatewayConfig().PongWait,
		WriteWait:         server.DefaultGatewayConfig().WriteWait,
	})
	if moderator != nil {
		gateway.WithFilter(moderator)
		messageService.WithFilter(moderator)
	}
	api := server.NewAPI(logger, authService, messageService, config.AuthTokenDuration)

	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           server.NewRouter(logger, api, gateway, verifier, origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewHTTPServerWorker(logger, httpServer, config.ShutdownTimeout),
		workers.NewGRPCHealthWorker(logger, config.HealthAddress()),
		workers.NewStatsWorker(logger, registry, router, config.StatsInterval),
	)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("Starting relay", "address", config.Address(), "health", config.HealthAddress())
		sup.Run(ctx)
	}()

	// 7. Wait for Stop
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-done:
		return exitRuntime, fmt.Errorf("workers stopped unexpectedly")
	}

	// 8. Graceful Shutdown
	// Hijacked websockets are not tracked by http.Server.Shutdown.
	logger.Info("Shutting down gracefully...", "sessions", registry.Len())
	gateway.CloseAll()
	<-done
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// buildModerator returns nil when no censored words file is configured.
func buildModerator(config internal.Config, logger *slog.Logger) (*moderation.Moderator, error) {
	if config.CensoredWordsFile == "" {
		return nil, nil
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	words, err := moderation.LoadFile(config.CensoredWordsFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Moderation enabled", "words", len(words))
	return moderation.NewModerator(words, charReplacement, logger)
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

// MessageMapper renders Badger values in the debug inspector.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "msg:"):
		var m repositories.DiskMessage
		if err := json.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("%s: %s", m.Author, m.Content)
	case strings.HasPrefix(key, "msgid:"):
		row.Type = "INDEX"
	case strings.HasPrefix(key, "user:"):
		var u repositories.User
		if err := json.Unmarshal(val, &u); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "USER"
		row.Detail = u.Username
	case strings.HasPrefix(key, "userid:"):
		row.Type = "INDEX"
	}
	return row
}
